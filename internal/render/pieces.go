package render

import nchess "github.com/corentings/chess/v2"

// Piece outlines on a 45x45 grid.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5"/>` +
		`<path d="M 17 22 L 28 22 L 31 33 L 14 33 Z"/>` +
		`<rect x="11" y="33" width="23" height="5" rx="1.5"/>`,
	nchess.Rook: `<path d="M 12 9 L 16 9 L 16 12 L 20 12 L 20 9 L 25 9 L 25 12 L 29 12 L 29 9 L 33 9 L 33 16 L 30 18 L 30 31 L 15 31 L 15 18 L 12 16 Z"/>` +
		`<rect x="10" y="31" width="25" height="6" rx="1.5"/>`,
	nchess.Knight: `<path d="M 14 36 L 31 36 C 32 28 30 20 26 14 L 27 9 L 22 11 L 17 13 C 13 16 11 21 11 24 L 15 25 L 19 21 C 19 25 16 29 14 36 Z"/>` +
		`<rect x="11" y="36" width="23" height="3" rx="1"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8.5" r="2.5"/>` +
		`<ellipse cx="22.5" cy="20" rx="7" ry="9"/>` +
		`<path d="M 17 28 L 28 28 L 30 33 L 15 33 Z"/>` +
		`<rect x="10" y="33" width="25" height="5" rx="1.5"/>`,
	nchess.Queen: `<path d="M 9 14 L 14 28 L 17 12 L 22.5 27 L 28 12 L 31 28 L 36 14 L 33 33 L 12 33 Z"/>` +
		`<circle cx="9" cy="12" r="2.5"/><circle cx="17" cy="10" r="2.5"/><circle cx="22.5" cy="9" r="2.5"/>` +
		`<circle cx="28" cy="10" r="2.5"/><circle cx="36" cy="12" r="2.5"/>` +
		`<rect x="11" y="33" width="23" height="5" rx="1.5"/>`,
	nchess.King: `<path d="M 21 4 L 24 4 L 24 7 L 27 7 L 27 10 L 24 10 L 24 14 L 21 14 L 21 10 L 18 10 L 18 7 L 21 7 Z"/>` +
		`<path d="M 11 20 C 11 14 19 13 22.5 18 C 26 13 34 14 34 20 C 34 25 30 28 29 33 L 16 33 C 15 28 11 25 11 20 Z"/>` +
		`<rect x="12" y="33" width="21" height="5" rx="1.5"/>`,
}

func pieceColors(c nchess.Color) (fill, stroke string) {
	if c == nchess.White {
		return "#ffffff", "#1b1b1b"
	}
	return "#2b2b2b", "#f0f0f0"
}
