// Package qr renders scannable code images for result retrieval URLs.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"converter/errs"
)

// Version-40 QR with low error correction tops out at 2953 bytes of
// binary payload.
const maxPayloadBytes = 2953

const imageSize = 256

// Emit encodes payload as a PNG QR image. Pure and deterministic: the
// same payload always yields the same bytes. Fails only when the payload
// is empty or exceeds QR capacity.
func Emit(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", errs.ErrInvalidPayload)
	}
	if len(payload) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", errs.ErrInvalidPayload, len(payload), maxPayloadBytes)
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, imageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidPayload, err)
	}
	return png, nil
}
