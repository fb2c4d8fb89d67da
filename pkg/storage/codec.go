package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	recordEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	recordDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// EncodeRecord encodes r as the CBOR 9-tuple.
func EncodeRecord(r Record) ([]byte, error) {
	return recordEncMode.Marshal(r)
}

// DecodeRecord decodes a CBOR 9-tuple.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := recordDecMode.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

func encodeEngagement(e Engagement) ([]byte, error) {
	if e.IsZero() {
		return nil, nil
	}
	return recordEncMode.Marshal(e)
}

func decodeEngagement(data []byte) (Engagement, error) {
	var e Engagement
	if len(data) == 0 {
		return e, nil
	}
	if err := recordDecMode.Unmarshal(data, &e); err != nil {
		return Engagement{}, fmt.Errorf("decode engagement: %w", err)
	}
	return e, nil
}
