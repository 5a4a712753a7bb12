package pipe

import (
	"bytes"
	"encoding/gob"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// Caller-defined message types exchanged between an unelevated parent and
// its elevated helper, or between a parent and an embedded child it
// launched to run a bundle on its behalf. These sit alongside the
// reserved TypeLog/TypeComplete/TypeTerminate ids.
const (
	TypeExecutePackage    uint32 = 1
	TypeCacheCompletePkg  uint32 = 2
	TypeDetectRelated     uint32 = 3
	TypeSaveState         uint32 = 4
	TypeSessionBegin      uint32 = 5
	TypeSessionResume     uint32 = 6
	TypeSessionEnd        uint32 = 7
	TypeCacheCleanup      uint32 = 8
	TypeCleanPackage      uint32 = 9
)

// ExecutePackagePayload is the gob-encoded body of a TypeExecutePackage
// message: enough for the receiving side to run one package action
// through its own local engine router and report the outcome back.
type ExecutePackagePayload struct {
	PackageID      string
	Action         int
	Direction      int
	CachedPayloads map[string]string
	Properties     map[string]string
}

// EncodeExecutePackage gob-encodes a payload for a TypeExecutePackage
// message body.
func EncodeExecutePackage(p ExecutePackagePayload) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, errkind.Wrap(errkind.IO, "encode execute-package payload", err)
	}
	return buf.Bytes(), nil
}

// DecodeExecutePackage reverses EncodeExecutePackage.
func DecodeExecutePackage(data []byte) (ExecutePackagePayload, error) {
	var p ExecutePackagePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return ExecutePackagePayload{}, errkind.Wrap(errkind.IO, "decode execute-package payload", err)
	}
	return p, nil
}
