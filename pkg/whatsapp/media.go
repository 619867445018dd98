package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"
	"github.com/sunshineplan/imgconv"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

var (
	ErrInvalidImage = errors.New("image must be a base64 string or data URL")
	ErrInvalidEmoji = errors.New("reaction must be exactly one emoji")
	ErrNoMessageID  = errors.New("message id is required")
)

// Image is a decoded outbound image ready for upload.
type Image struct {
	Data      []byte
	Mimetype  string
	Thumbnail []byte
}

type ImageOptions struct {
	ConvertWebP bool
	Compress    bool
}

// DecodeImage accepts raw base64 or a data URL.
func DecodeImage(raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", ErrInvalidImage
	}
	mimetype := ""
	if strings.HasPrefix(raw, "data:") {
		header, payload, found := strings.Cut(raw, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", ErrInvalidImage
		}
		mimetype = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		raw = payload
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", ErrInvalidImage
	}
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimetype, "image/") {
		return nil, "", ErrInvalidImage
	}
	return data, mimetype, nil
}

// PrepareImage converts WebP to PNG when asked, optionally shrinks the image to
// 1024px wide and renders the 72px JPEG thumbnail WhatsApp expects.
func PrepareImage(data []byte, mimetype string, opts ImageOptions) (Image, error) {
	if mimetype == "image/webp" && opts.ConvertWebP {
		decoded, err := imgconv.Decode(bytes.NewReader(data))
		if err != nil {
			return Image{}, errors.New("Error While Decoding Convert Image Stream")
		}
		converted := new(bytes.Buffer)
		if err := imgconv.Write(converted, decoded, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
			return Image{}, errors.New("Error While Encoding Convert Image Stream")
		}
		data = converted.Bytes()
		mimetype = "image/png"
	}

	if opts.Compress {
		decoded, err := imgconv.Decode(bytes.NewReader(data))
		if err != nil {
			return Image{}, errors.New("Error While Decoding Resize Image Stream")
		}
		resized := new(bytes.Buffer)
		err = imgconv.Write(resized,
			imgconv.Resize(decoded, &imgconv.ResizeOption{Width: 1024}),
			&imgconv.FormatOption{})
		if err != nil {
			return Image{}, errors.New("Error While Encoding Resize Image Stream")
		}
		data = resized.Bytes()
	}

	decoded, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, errors.New("Error While Decoding Thumbnail Image Stream")
	}
	thumb := new(bytes.Buffer)
	err = imgconv.Write(thumb,
		imgconv.Resize(decoded, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return Image{}, errors.New("Error While Encoding Thumbnail Image Stream")
	}

	return Image{Data: data, Mimetype: mimetype, Thumbnail: thumb.Bytes()}, nil
}

type uploader interface {
	Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
}

// BuildImage uploads the image and its thumbnail and returns the message.
func BuildImage(ctx context.Context, up uploader, img Image, caption string, viewOnce bool) (*waE2E.Message, error) {
	uploaded, err := up.Upload(ctx, img.Data, whatsmeow.MediaImage)
	if err != nil {
		return nil, errors.New("Error While Uploading Media to WhatsApp Server")
	}
	thumbUploaded, err := up.Upload(ctx, img.Thumbnail, whatsmeow.MediaLinkThumbnail)
	if err != nil {
		return nil, errors.New("Error while Uploading Image Thumbnail to WhatsApp Server")
	}

	return &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:                 proto.String(uploaded.URL),
			DirectPath:          proto.String(uploaded.DirectPath),
			Mimetype:            proto.String(img.Mimetype),
			Caption:             proto.String(caption),
			FileLength:          proto.Uint64(uploaded.FileLength),
			FileSHA256:          uploaded.FileSHA256,
			FileEncSHA256:       uploaded.FileEncSHA256,
			MediaKey:            uploaded.MediaKey,
			JPEGThumbnail:       img.Thumbnail,
			ThumbnailDirectPath: proto.String(thumbUploaded.DirectPath),
			ThumbnailSHA256:     thumbUploaded.FileSHA256,
			ThumbnailEncSHA256:  thumbUploaded.FileEncSHA256,
			ViewOnce:            proto.Bool(viewOnce),
		},
	}, nil
}

// BuildReaction reacts to messageID in chat. An empty emoji removes the reaction.
func BuildReaction(chat, messageID string, fromMe bool, emoji string) (*waE2E.Message, error) {
	if emoji != "" && (!gomoji.ContainsEmoji(emoji) || uniseg.GraphemeClusterCount(emoji) != 1) {
		return nil, ErrInvalidEmoji
	}
	if strings.TrimSpace(messageID) == "" {
		return nil, ErrNoMessageID
	}
	return &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key: &waCommon.MessageKey{
				FromMe:    proto.Bool(fromMe),
				ID:        proto.String(messageID),
				RemoteJID: proto.String(chat),
			},
			Text:              proto.String(emoji),
			SenderTimestampMS: proto.Int64(time.Now().UnixMilli()),
		},
	}, nil
}
