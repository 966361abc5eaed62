package api

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/rpc"
)

// rpcError carries a registered error across JSON-RPC: the ABCI code becomes
// the JSON-RPC error code and the codespace the error data.
type rpcError struct {
	code      uint32
	codespace string
	msg       string
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorCode() int         { return int(e.code) }
func (e *rpcError) ErrorData() interface{} { return e.codespace }

// toRPCError returns err unchanged unless it belongs to a registered codespace.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	if codespace == errorsmod.UndefinedCodespace {
		return err
	}
	return &rpcError{code: code, codespace: codespace, msg: err.Error()}
}

// Error is a registered error received from the server. It unwraps to the
// matching sentinel so errors.Is works against the server's taxonomy.
type Error struct {
	Code      uint32
	Codespace string
	Message   string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error {
	return errorsmod.ABCIError(e.Codespace, e.Code, e.Message)
}

// FromRPCError restores a registered error returned by an RPC call. Other
// errors, including transport failures, are returned unchanged.
func FromRPCError(err error) error {
	var (
		coded rpc.Error
		data  rpc.DataError
	)
	if !errors.As(err, &coded) || !errors.As(err, &data) {
		return err
	}
	codespace, ok := data.ErrorData().(string)
	if !ok || codespace == "" || coded.ErrorCode() <= 0 {
		return err
	}
	return &Error{Code: uint32(coded.ErrorCode()), Codespace: codespace, Message: err.Error()}
}
