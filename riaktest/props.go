/**
 * Copyright 2021 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package riaktest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/xmidt-org/nodiak/model"
)

type propsRequest struct {
	method string
	ns     Namespace
	// typeOnly is set for /types/{type}/props.
	typeOnly bool
	props    model.Props
}

func newPropsHandler(st *Store) http.Handler {
	return kithttp.NewServer(
		newPropsEndpoint(st),
		decodePropsRequest,
		encodePropsResponse,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func decodePropsRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	v := vars(r)
	_, hasBucket := v[bucketVarKey]
	req := &propsRequest{
		method:   r.Method,
		ns:       namespace(r),
		typeOnly: !hasBucket,
	}
	if r.Method != http.MethodPut {
		return req, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, badRequest("failed to read body")
	}
	var body struct {
		Props model.Props `json:"props"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, badRequest("failed to unmarshal json")
	}
	if body.Props == nil {
		return nil, badRequest("props field must be set")
	}
	req.props = body.Props
	return req, nil
}

func newPropsEndpoint(st *Store) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*propsRequest)
		if req.method == http.MethodPut {
			if req.typeOnly {
				st.SetTypeProps(req.ns.Type, req.props)
			} else {
				st.SetProps(req.ns, req.props)
			}
			return nil, nil
		}
		if req.typeOnly {
			return st.TypeProps(req.ns.Type), nil
		}
		return st.Props(req.ns), nil
	}
}

func encodePropsResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	props, ok := response.(model.Props)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"props": props})
	return nil
}
