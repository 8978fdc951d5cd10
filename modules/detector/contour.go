package detector

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// scanContour joins bar edges into solid blocks (Canny, horizontal dilate,
// close) and scores external contours by solidity and aspect.
func scanContour(in *input, cfg Config) (candidate, bool) {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(in.gray, &edges, 50, 150)

	horiz := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(15, 1))
	defer horiz.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(edges, &dilated, horiz)
	gocv.Dilate(dilated, &dilated, horiz)

	block := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(25, 5))
	defer block.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(dilated, &closed, gocv.MorphClose, block)

	contours := gocv.FindContours(closed, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best candidate
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		r := gocv.BoundingRect(c)
		w, h := r.Dx(), r.Dy()

		if w < cfg.MinWidth || h < cfg.MinHeight {
			continue
		}
		if float64(w) > float64(in.w)*0.7 {
			continue
		}
		best.evaluated++

		solidity := gocv.ContourArea(c) / float64(w*h)
		if solidity < 0.6 {
			continue
		}
		aspect := float64(w) / float64(h)
		if aspect < 1.0 {
			continue
		}

		conf := math.Min(1.0, math.Min(aspect, 8.0)/8.0*0.5+solidity*0.5)
		if conf > best.confidence {
			best.box = r
			best.confidence = conf
		}
	}
	return best, !best.box.Empty()
}
