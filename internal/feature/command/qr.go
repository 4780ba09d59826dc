package command

import (
	"fmt"
	"os"

	qrcode "github.com/skip2/go-qrcode"
)

// writeJoinQR renders a join-invite payload as a QR code PNG on disk and
// returns the file path for attachment. Overridable in tests.
var writeJoinQR = func(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode join qr: %w", err)
	}

	f, err := os.CreateTemp("", "join-*.png")
	if err != nil {
		return "", fmt.Errorf("create qr file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(png); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write qr file: %w", err)
	}

	return f.Name(), nil
}
