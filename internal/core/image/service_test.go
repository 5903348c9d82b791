package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"ingredient-checker/internal/pkg/common"

	"golang.org/x/image/bmp"
)

func encodePNG(t *testing.T, w, h int, noisy bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewSource(1))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			c := color.RGBA{R: 200, G: 200, B: 200, A: 255}
			if noisy {
				c = color.RGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateImage(t *testing.T) {
	svc := NewService(1 << 20)
	data := encodePNG(t, 4, 4, false)

	format, err := svc.ValidateImage(Upload{FileName: "label.png", ContentType: "image/png", Data: data})
	if err != nil || format != "png" {
		t.Fatalf("ValidateImage = %q, %v", format, err)
	}
}

func TestValidateImageBMP(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}

	format, err := NewService(0).ValidateImage(Upload{FileName: "label.bmp", ContentType: "image/bmp", Data: buf.Bytes()})
	if err != nil || format != "bmp" {
		t.Fatalf("ValidateImage = %q, %v", format, err)
	}
}

func TestValidateImageRejects(t *testing.T) {
	svc := NewService(64)
	pngData := encodePNG(t, 2, 2, false)

	cases := []struct {
		name   string
		upload Upload
		want   *common.CustomError
	}{
		{"empty", Upload{ContentType: "image/png"}, common.ErrInvalidUpload},
		{"gif type", Upload{ContentType: "image/gif", Data: pngData}, common.ErrInvalidUpload},
		{"not an image", Upload{ContentType: "image/png", Data: []byte("hello")}, common.ErrInvalidUpload},
		{"too large", Upload{ContentType: "image/png", Data: make([]byte, 65)}, common.ErrPayloadTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ValidateImage(tc.upload)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want.Code, err)
			}
		})
	}
}

func TestProcessImageReencodesLargeImages(t *testing.T) {
	svc := NewService(0)
	svc.ocrMaxBytes = 1024
	data := encodePNG(t, 64, 64, true)

	out, err := svc.ProcessImage(Upload{FileName: "label.png", ContentType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if out.FileName != "label.jpg" || out.ContentType != "image/jpeg" {
		t.Fatalf("expected jpeg output, got %q %q", out.FileName, out.ContentType)
	}
	if len(out.Data) >= len(data) {
		t.Fatal("re-encoded image should be smaller")
	}
}

func TestProcessImageKeepsSmallImages(t *testing.T) {
	data := encodePNG(t, 2, 2, false)
	in := Upload{FileName: "label.png", ContentType: "image/png", Data: data}

	out, err := NewService(0).ProcessImage(in)
	if err != nil || out.FileName != "label.png" || !bytes.Equal(out.Data, data) {
		t.Fatalf("ProcessImage changed a small image: %+v, %v", out.FileName, err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	data := encodePNG(t, 2, 2, false)
	ct, decoded, err := DecodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(data))
	if err != nil || ct != "image/png" || !bytes.Equal(decoded, data) {
		t.Fatalf("DecodeDataURL = %q, %v", ct, err)
	}

	if _, _, err := DecodeDataURL("https://example.com/a.png"); !errors.Is(err, common.ErrInvalidUpload) {
		t.Fatalf("expected invalid upload, got %v", err)
	}
}
