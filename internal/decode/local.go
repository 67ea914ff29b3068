package decode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// LocalDecoder decodes frames in process. It tries EAN/UPC, Code 128 and Code 39.
type LocalDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewLocalDecoder() *LocalDecoder {
	return &LocalDecoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// readers are built per call; gozxing readers keep state between decodes.
func (d *LocalDecoder) readers() []gozxing.Reader {
	return []gozxing.Reader{
		oned.NewMultiFormatUPCEANReader(d.hints),
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
	}
}

func (d *LocalDecoder) Decode(ctx context.Context, frame Frame) (Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}
	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	for _, reader := range d.readers() {
		if err := ctx.Err(); err != nil {
			return Result{}, false, err
		}
		result, err := reader.Decode(bmp, d.hints)
		if err != nil {
			continue
		}
		return Result{
			Barcode: result.GetText(),
			Format:  strings.ToLower(result.GetBarcodeFormat().String()),
		}, true, nil
	}
	return Result{}, false, nil
}
