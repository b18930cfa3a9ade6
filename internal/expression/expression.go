// Package expression translates engine expression codes into the symbols
// shown to the user and delivers them to the registered consumer.
package expression

import (
	"github.com/ayusman/emocall/internal/detector"
)

// Symbol is a display symbol name.
type Symbol string

// The closed set of symbols. Every expression code maps to exactly one.
const (
	AngryFace        Symbol = "angry-face"
	WinkFace         Symbol = "wink-face"
	SmirkFace        Symbol = "smirk-face"
	ScreamFace       Symbol = "scream-face"
	SmileFace        Symbol = "smile-face"
	FlushedFace      Symbol = "flushed-face"
	KissFace         Symbol = "kiss-face"
	TongueFace       Symbol = "tongue-face"
	TongueWinkFace   Symbol = "tongue-wink-face"
	RelaxedFace      Symbol = "relaxed-face"
	LaughFace        Symbol = "laugh-face"
	DisappointedFace Symbol = "disappointed-face"
	NeutralFace      Symbol = "neutral-face"
)

var symbols = map[detector.Expression]Symbol{
	detector.ExpressionRage:          AngryFace,
	detector.ExpressionWink:          WinkFace,
	detector.ExpressionSmirk:         SmirkFace,
	detector.ExpressionScream:        ScreamFace,
	detector.ExpressionSmiley:        SmileFace,
	detector.ExpressionFlushed:       FlushedFace,
	detector.ExpressionKissing:       KissFace,
	detector.ExpressionTongueOut:     TongueFace,
	detector.ExpressionTongueOutWink: TongueWinkFace,
	detector.ExpressionRelaxed:       RelaxedFace,
	detector.ExpressionLaughing:      LaughFace,
	detector.ExpressionDisappointed:  DisappointedFace,
}

var emoji = map[Symbol]string{
	AngryFace:        "😡",
	WinkFace:         "😉",
	SmirkFace:        "😏",
	ScreamFace:       "😱",
	SmileFace:        "😀",
	FlushedFace:      "😳",
	KissFace:         "😗",
	TongueFace:       "😛",
	TongueWinkFace:   "😜",
	RelaxedFace:      "☺️",
	LaughFace:        "😆",
	DisappointedFace: "😞",
	NeutralFace:      "😶",
}

// SymbolFor maps an expression code to its symbol. Unknown codes, including
// detector.ExpressionUnknown, map to NeutralFace.
func SymbolFor(code detector.Expression) Symbol {
	if s, ok := symbols[code]; ok {
		return s
	}
	return NeutralFace
}

// Emoji returns the glyph for s.
func (s Symbol) Emoji() string {
	if e, ok := emoji[s]; ok {
		return e
	}
	return emoji[NeutralFace]
}

// String returns the symbol name.
func (s Symbol) String() string {
	return string(s)
}

// Update is one translated face.
type Update struct {
	Score  float64 `json:"score"`
	Symbol Symbol  `json:"symbol"`
}

// UpdateFunc receives the valence score and symbol name of one face.
type UpdateFunc func(score float64, symbol string)

// Translate converts a result batch into updates, one per face, in batch order.
func Translate(batch detector.Batch) []Update {
	if len(batch.Faces) == 0 {
		return nil
	}
	updates := make([]Update, len(batch.Faces))
	for i, f := range batch.Faces {
		updates[i] = Update{Score: f.Valence, Symbol: SymbolFor(f.Expression)}
	}
	return updates
}

// Translator forwards translated batches to a single consumer.
type Translator struct {
	consumer UpdateFunc
}

// NewTranslator returns a Translator delivering to consumer. A nil consumer
// discards updates.
func NewTranslator(consumer UpdateFunc) *Translator {
	return &Translator{consumer: consumer}
}

// Deliver invokes the consumer synchronously once per face. An empty batch
// produces no call.
func (t *Translator) Deliver(batch detector.Batch) {
	if t.consumer == nil {
		return
	}
	for _, u := range Translate(batch) {
		t.consumer(u.Score, string(u.Symbol))
	}
}

// Indicator describes the thumbs-up/down valence badge.
type Indicator struct {
	Glyph   string  `json:"glyph"`
	Opacity float64 `json:"opacity"`
}

// IndicatorFor returns 👍 for non-negative scores and 👎 otherwise, with
// opacity score/100 + 0.4 clamped to [0, 1].
func IndicatorFor(score float64) Indicator {
	glyph := "👍"
	if score < 0 {
		glyph = "👎"
	}
	opacity := score/100 + 0.4
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}
	return Indicator{Glyph: glyph, Opacity: opacity}
}
