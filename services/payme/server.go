package payme

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/joy095/roomslot/logger"
)

const jsonRPCVersion = "2.0"

// Server authenticates and decodes RPC envelopes and turns every outcome,
// panics included, into a protocol response.
type Server struct {
	handler Handler
	login   string
	key     string
}

func NewServer(h Handler, login, key string) *Server {
	return &Server{handler: h, login: login, key: key}
}

func (s *Server) Handle(ctx context.Context, authHeader string, body []byte) (resp Response) {
	resp = Response{JSONRPC: jsonRPCVersion, ID: json.RawMessage("null")}
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorLogger.Errorf("payme handler panic: %v", r)
			resp.Result = nil
			resp.Error = errInternal()
		}
	}()

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		resp.Error = errParse()
		return resp
	}
	if len(env.ID) > 0 {
		resp.ID = env.ID
	}

	if !s.authorized(authHeader) {
		logger.WarnLogger.Warnf("[SECURITY] payme request with invalid credentials (method %q)", env.Method)
		resp.Error = errInsufficientPrivilege()
		return resp
	}
	if env.Method == "" {
		resp.Error = errInvalidRequest("method")
		return resp
	}

	req, perr := DecodeRequest(env.Method, env.Params)
	if perr != nil {
		resp.Error = perr
		return resp
	}

	logger.DebugLogger.Debugf("payme %s request %s", env.Method, string(env.Params))
	result, perr := Dispatch(ctx, s.handler, req)
	if perr != nil {
		logger.InfoLogger.Infof("payme %s answered with error %d: %s", env.Method, perr.Code, perr.Message.En)
		resp.Error = perr
		return resp
	}
	resp.Result = result
	return resp
}

// Busy answers a call that is refused before dispatch, e.g. when throttled. The id
// is echoed when the body carries one so the provider can match the reply.
func Busy(body []byte) Response {
	resp := Response{JSONRPC: jsonRPCVersion, ID: json.RawMessage("null"), Error: errInternal()}
	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.ID) > 0 {
		resp.ID = env.ID
	}
	return resp
}

func (s *Server) authorized(header string) bool {
	if s.key == "" {
		return false
	}
	encoded, ok := strings.CutPrefix(header, "Basic ")
	if !ok {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return false
	}
	login, key, ok := strings.Cut(string(raw), ":")
	if !ok {
		return false
	}
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(s.login)) == 1
	keyOK := subtle.ConstantTimeCompare([]byte(key), []byte(s.key)) == 1
	return loginOK && keyOK
}
