package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
)

const (
	squarePx   = 64
	boardPx    = squarePx * 8
	defaultPx  = 480
	minPx      = 64
	maxPx      = 2048
	lightColor = "#f0d9b5"
	darkColor  = "#b58863"
	lightMark  = "#f6f669"
	darkMark   = "#baca2b"
)

var ErrBadSquare = errors.New("render: bad highlight square")

type Options struct {
	// Size is the output edge in pixels.
	Size int
	// Flip puts black at the bottom.
	Flip bool
	// From and To mark the last move, e.g. "e2" and "e4".
	From string
	To   string
}

// BoardSVG draws the position described by fen.
func BoardSVG(fen string, opts Options) (string, error) {
	board, err := boardFromFEN(fen)
	if err != nil {
		return "", err
	}
	marks := map[nchess.Square]bool{}
	for _, s := range []string{opts.From, opts.To} {
		if s == "" {
			continue
		}
		sq, ok := parseSquare(s)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrBadSquare, s)
		}
		marks[sq] = true
	}

	pieces := board.SquareMap()
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		boardPx, boardPx, boardPx, boardPx)
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			sq := nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
			x, y := squareOrigin(file, rank, opts.Flip)
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`,
				x, y, squarePx, squarePx, squareFill(file, rank, marks[sq]))

			piece, ok := pieces[sq]
			if !ok || piece == nchess.NoPiece {
				continue
			}
			shape := pieceShapes[piece.Type()]
			fill, stroke := pieceColors(piece.Color())
			scale := float64(squarePx) / 45
			fmt.Fprintf(&b, `<g transform="translate(%d,%d) scale(%.4f)" fill="%s" stroke="%s" stroke-width="1.5">%s</g>`,
				x, y, scale, fill, stroke, shape)
		}
	}
	b.WriteString(`</svg>`)
	return b.String(), nil
}

// RenderPNG rasterises BoardSVG and scales it to opts.Size.
func RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	svg, err := BoardSVG(fen, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse board svg: %w", err)
	}
	icon.SetTarget(0, 0, boardPx, boardPx)
	src := image.NewRGBA(image.Rect(0, 0, boardPx, boardPx))
	scanner := rasterx.NewScannerGV(boardPx, boardPx, src, src.Bounds())
	icon.Draw(rasterx.NewDasher(boardPx, boardPx, scanner), 1.0)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := clampSize(opts.Size)
	var out image.Image = src
	if size != boardPx {
		dst := image.NewRGBA(image.Rect(0, 0, size, size))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func boardFromFEN(fen string) (*nchess.Board, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return nchess.NewGame().Position().Board(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(opt).Position().Board(), nil
}

func squareOrigin(file, rank int, flip bool) (int, int) {
	col, row := file, 7-rank
	if flip {
		col, row = 7-file, rank
	}
	return col * squarePx, row * squarePx
}

func squareFill(file, rank int, marked bool) string {
	light := (file+rank)%2 == 1
	switch {
	case light && marked:
		return lightMark
	case marked:
		return darkMark
	case light:
		return lightColor
	default:
		return darkColor
	}
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func clampSize(n int) int {
	switch {
	case n <= 0:
		return defaultPx
	case n < minPx:
		return minPx
	case n > maxPx:
		return maxPx
	default:
		return n
	}
}
