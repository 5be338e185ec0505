package server

import (
	"supctl/config"
	"supctl/ctl"
	"supctl/manager"
	"supctl/message"
	"supctl/protocol"
)

// Builder decodes a request body and returns the operation that serves it.
type Builder func(w *protocol.WireMessage) (ctl.Operation, error)

// DefaultDispatch maps the ctl request ids to manager operations.
func DefaultDispatch() map[string]Builder {
	return map[string]Builder{
		message.IDSvcLoad:  buildSvcLoad,
		message.IDSvcStart: buildSvcStart,
	}
}

func buildSvcLoad(w *protocol.WireMessage) (ctl.Operation, error) {
	m, err := message.Parse[message.SvcLoad](w)
	if err != nil {
		return nil, err
	}
	opts, err := manager.NewSvcLoadOpts(m.Payload)
	if err != nil {
		return nil, err
	}
	return func(cfg *config.Manager, req *ctl.Request) error {
		return manager.ServiceLoad(cfg, req, opts)
	}, nil
}

func buildSvcStart(w *protocol.WireMessage) (ctl.Operation, error) {
	m, err := message.Parse[message.SvcStart](w)
	if err != nil {
		return nil, err
	}
	opts, err := manager.NewSvcStartOpts(m.Payload)
	if err != nil {
		return nil, err
	}
	return func(cfg *config.Manager, req *ctl.Request) error {
		return manager.ServiceStart(cfg, req, opts)
	}, nil
}
