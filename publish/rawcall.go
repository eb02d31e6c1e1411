package publish

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3/w3types"
)

// rawCall is a w3 RPC caller for methods the eth module does not cover.
type rawCall struct {
	method string
	args   []any
	ret    any
}

var _ w3types.RPCCaller = (*rawCall)(nil)

func newRawCall(method string, ret any, args ...any) *rawCall {
	if ret == nil {
		ret = new(json.RawMessage)
	}
	return &rawCall{method: method, args: args, ret: ret}
}

func (c *rawCall) CreateRequest() (rpc.BatchElem, error) {
	return rpc.BatchElem{
		Method: c.method,
		Args:   c.args,
		Result: c.ret,
	}, nil
}

func (c *rawCall) HandleResponse(elem rpc.BatchElem) error {
	return elem.Error
}
