package message

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"supctl/codec"
)

const (
	IDHandshake   = "Handshake"
	IDNetOk       = "NetOk"
	IDNetErr      = "NetErr"
	IDNetProgress = "NetProgress"
	IDConsoleLine = "ConsoleLine"
	IDSvcLoad     = "SvcLoad"
	IDSvcStart    = "SvcStart"
)

// ErrCode classifies an application error carried by NetErr.
type ErrCode int32

const (
	ErrInternal     ErrCode = 0
	ErrIo           ErrCode = 1
	ErrNotFound     ErrCode = 2
	ErrConflict     ErrCode = 3
	ErrUnauthorized ErrCode = 4
)

func (c ErrCode) String() string {
	switch c {
	case ErrInternal:
		return "Internal"
	case ErrIo:
		return "Io"
	case ErrNotFound:
		return "NotFound"
	case ErrConflict:
		return "Conflict"
	case ErrUnauthorized:
		return "Unauthorized"
	}
	return fmt.Sprintf("ErrCode(%d)", int32(c))
}

// Description is the operator-facing summary of the code.
func (c ErrCode) Description() string {
	switch c {
	case ErrIo:
		return "IO error"
	case ErrNotFound:
		return "Entity not found"
	case ErrConflict:
		return "Entity exists or is unable to update with given parameters"
	case ErrUnauthorized:
		return "Client failed authorization with server"
	}
	return "Internal error"
}

// Handshake is the first request on every connection.
type Handshake struct {
	AuthKey string
}

func (*Handshake) MessageID() string { return IDHandshake }

func (m *Handshake) AppendProto(b []byte) []byte {
	return codec.AppendString(b, 1, m.AuthKey)
}

func (m *Handshake) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		if f.Num == 1 {
			m.AuthKey = string(f.Bytes)
		}
		return nil
	})
}

// NetOk is the empty success reply.
type NetOk struct{}

func (*NetOk) MessageID() string { return IDNetOk }

func (*NetOk) AppendProto(b []byte) []byte { return b }

func (*NetOk) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(codec.Field) error { return nil })
}

// NetErr is a structured application error. It is sent as the final reply of
// a failed transaction and surfaces on the client as an error value.
type NetErr struct {
	Code ErrCode
	Msg  string
}

// Errorf builds a NetErr with a formatted message.
func Errorf(code ErrCode, format string, args ...any) *NetErr {
	return &NetErr{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (*NetErr) MessageID() string { return IDNetErr }

func (m *NetErr) Error() string {
	return fmt.Sprintf("[Err: %d, Msg: %s]", int32(m.Code), m.Msg)
}

func (m *NetErr) AppendProto(b []byte) []byte {
	b = codec.AppendVarint(b, 1, uint64(m.Code))
	return codec.AppendString(b, 2, m.Msg)
}

func (m *NetErr) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			m.Code = ErrCode(int32(f.Varint))
		case 2:
			m.Msg = string(f.Bytes)
		}
		return nil
	})
}

// NetProgress reports transfer progress of a long-running operation.
type NetProgress struct {
	Total uint64
	Delta uint64
}

func (*NetProgress) MessageID() string { return IDNetProgress }

func (m *NetProgress) AppendProto(b []byte) []byte {
	b = codec.AppendVarint(b, 1, m.Total)
	return codec.AppendVarint(b, 2, m.Delta)
}

func (m *NetProgress) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			m.Total = f.Varint
		case 2:
			m.Delta = f.Varint
		}
		return nil
	})
}

// ConsoleLine is one chunk of operator-visible output.
type ConsoleLine struct {
	Line string
}

func (*ConsoleLine) MessageID() string { return IDConsoleLine }

func (m *ConsoleLine) String() string { return m.Line }

func (m *ConsoleLine) AppendProto(b []byte) []byte {
	return codec.AppendString(b, 2, m.Line)
}

func (m *ConsoleLine) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		if f.Num == 2 {
			m.Line = string(f.Bytes)
		}
		return nil
	})
}

type ServiceBindList struct {
	Binds []ServiceBind
}

func (m *ServiceBindList) AppendProto(b []byte) []byte {
	for i := range m.Binds {
		b = codec.AppendMessage(b, 1, &m.Binds[i])
	}
	return b
}

func (m *ServiceBindList) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		if f.Num != 1 {
			return nil
		}
		var bind ServiceBind
		if err := bind.UnmarshalProto(f.Bytes); err != nil {
			return err
		}
		m.Binds = append(m.Binds, bind)
		return nil
	})
}

// SvcLoad asks the supervisor to load a service from an install source.
// Empty strings and nil pointers mean "not specified".
type SvcLoad struct {
	ApplicationEnvironment *ApplicationEnvironment
	Binds                  []ServiceBind
	CompositeBinds         map[string]ServiceBindList
	SpecifiedBinds         bool
	BldrURL                string
	BldrChannel            string
	ConfigFrom             string
	Force                  bool
	Group                  string
	Source                 string
	SvcEncryptedPassword   string
	Topology               *Topology
	UpdateStrategy         *UpdateStrategy
}

func (*SvcLoad) MessageID() string { return IDSvcLoad }

func (m *SvcLoad) AppendProto(b []byte) []byte {
	if m.ApplicationEnvironment != nil {
		b = codec.AppendMessage(b, 1, m.ApplicationEnvironment)
	}
	for i := range m.Binds {
		b = codec.AppendMessage(b, 2, &m.Binds[i])
	}
	for _, name := range sortedKeys(m.CompositeBinds) {
		list := m.CompositeBinds[name]
		var entry []byte
		entry = codec.AppendString(entry, 1, name)
		entry = codec.AppendMessage(entry, 2, &list)
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	b = codec.AppendBool(b, 4, m.SpecifiedBinds)
	b = codec.AppendString(b, 5, m.BldrURL)
	b = codec.AppendString(b, 6, m.BldrChannel)
	b = codec.AppendString(b, 7, m.ConfigFrom)
	b = codec.AppendBool(b, 8, m.Force)
	b = codec.AppendString(b, 9, m.Group)
	b = codec.AppendString(b, 10, m.Source)
	b = codec.AppendString(b, 11, m.SvcEncryptedPassword)
	if m.Topology != nil {
		b = protowire.AppendTag(b, 12, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.Topology))
	}
	if m.UpdateStrategy != nil {
		b = protowire.AppendTag(b, 13, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.UpdateStrategy))
	}
	return b
}

func (m *SvcLoad) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			m.ApplicationEnvironment = &ApplicationEnvironment{}
			return m.ApplicationEnvironment.UnmarshalProto(f.Bytes)
		case 2:
			var bind ServiceBind
			if err := bind.UnmarshalProto(f.Bytes); err != nil {
				return err
			}
			m.Binds = append(m.Binds, bind)
		case 3:
			return m.unmarshalCompositeEntry(f.Bytes)
		case 4:
			m.SpecifiedBinds = protowire.DecodeBool(f.Varint)
		case 5:
			m.BldrURL = string(f.Bytes)
		case 6:
			m.BldrChannel = string(f.Bytes)
		case 7:
			m.ConfigFrom = string(f.Bytes)
		case 8:
			m.Force = protowire.DecodeBool(f.Varint)
		case 9:
			m.Group = string(f.Bytes)
		case 10:
			m.Source = string(f.Bytes)
		case 11:
			m.SvcEncryptedPassword = string(f.Bytes)
		case 12:
			t := Topology(f.Varint)
			m.Topology = &t
		case 13:
			s := UpdateStrategy(f.Varint)
			m.UpdateStrategy = &s
		}
		return nil
	})
}

func (m *SvcLoad) unmarshalCompositeEntry(b []byte) error {
	var (
		key  string
		list ServiceBindList
	)
	err := codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			key = string(f.Bytes)
		case 2:
			return list.UnmarshalProto(f.Bytes)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if m.CompositeBinds == nil {
		m.CompositeBinds = make(map[string]ServiceBindList)
	}
	m.CompositeBinds[key] = list
	return nil
}

// SvcStart asks the supervisor to start an already loaded service.
type SvcStart struct {
	Ident PackageIdent
}

func (*SvcStart) MessageID() string { return IDSvcStart }

func (m *SvcStart) AppendProto(b []byte) []byte {
	return codec.AppendMessage(b, 1, &m.Ident)
}

func (m *SvcStart) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		if f.Num == 1 {
			return m.Ident.UnmarshalProto(f.Bytes)
		}
		return nil
	})
}
