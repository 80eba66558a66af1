// Package assets renders ticket QR codes and keeps them on disk.
package assets

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const defaultQRSize = 512

// QREncoder renders PNG QR codes at the High error-correction level so a
// scuffed or partly covered badge still scans.
type QREncoder struct {
	size int
}

func NewQREncoder(size int) *QREncoder {
	if size <= 0 {
		size = defaultQRSize
	}
	return &QREncoder{size: size}
}

func (e *QREncoder) Encode(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.High, e.size)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}
