package whatsapp

import (
	"encoding/base64"

	qrCode "github.com/skip2/go-qrcode"
)

// EncodeQR renders a login challenge as a PNG data URL.
func EncodeQR(code string) (string, error) {
	png, err := qrCode.Encode(code, qrCode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
