package schema

import (
	"encoding/json"

	"github.com/viant/jsonrpc"
)

// SetResult encodes result into response; a marshalling failure turns into an internal error
func SetResult(response *jsonrpc.Response, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		response.Error = jsonrpc.NewError(InternalErrorCode, err.Error(), nil)
		return
	}
	response.Result = data
}
