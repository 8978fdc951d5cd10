package decoder

import (
	"image"

	"gocv.io/x/gocv"
)

// sharpenKernel is the 3x3 high-boost filter: 9 in the centre, -1 around it.
func sharpenKernel() gocv.Mat {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			k.SetFloatAt(r, c, -1)
		}
	}
	k.SetFloatAt(1, 1, 9)
	return k
}

// render builds variant v from the grayscale ROI. binary is the Otsu image,
// shared by VariantBinary and VariantInverted. The caller closes the result.
func render(v Variant, gray, binary gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch v {
	case VariantGray:
		gray.CopyTo(&out)
	case VariantCLAHE:
		clahe := gocv.NewCLAHEWithParams(3.0, image.Pt(8, 8))
		defer clahe.Close()
		clahe.Apply(gray, &out)
	case VariantBinary:
		binary.CopyTo(&out)
	case VariantSharpened:
		k := sharpenKernel()
		defer k.Close()
		gocv.Filter2D(gray, &out, gocv.MatType(-1), k, image.Pt(-1, -1), 0, gocv.BorderDefault)
	case VariantInverted:
		gocv.BitwiseNot(binary, &out)
	}
	return out
}

// otsu binarizes gray with an automatically chosen threshold.
func otsu(gray gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.Threshold(gray, &out, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return out
}
