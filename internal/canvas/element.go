package canvas

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind enumerates the committed element kinds.
type Kind string

const (
	// KindFreehandStroke is a finished pen path.
	KindFreehandStroke Kind = "freehand-stroke"
	// KindShape is a rectangle or ellipse.
	KindShape Kind = "shape"
	// KindText is a text label.
	KindText Kind = "text"
)

// StrokeMode selects how a freehand stroke composites onto the canvas.
type StrokeMode string

const (
	// StrokeModeNormal paints with the stroke color.
	StrokeModeNormal StrokeMode = "normal"
	// StrokeModeErase clears pixels under the stroke.
	StrokeModeErase StrokeMode = "erase"
)

// ShapeType enumerates supported shapes.
type ShapeType string

const (
	ShapeTypeRectangle ShapeType = "rectangle"
	ShapeTypeCircle    ShapeType = "circle"
	ShapeTypeEllipse   ShapeType = "ellipse"
)

const (
	maxStrokePoints   = 20000
	maxColorLength    = 64
	maxTextLength     = 2000
	maxFontFamilySize = 128
	defaultFontFamily = "sans-serif"

	// UnknownAuthorName is used in snapshots when the author is no longer a member.
	UnknownAuthorName = "Unknown User"
)

var (
	// ErrInvalidStroke indicates that a freehand stroke payload is malformed.
	ErrInvalidStroke = errors.New("canvas: invalid stroke")
	// ErrInvalidShape indicates that a shape payload is malformed.
	ErrInvalidShape = errors.New("canvas: invalid shape")
	// ErrInvalidText indicates that a text payload is malformed.
	ErrInvalidText = errors.New("canvas: invalid text")
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Payload is the kind-specific body of an element. The set of implementations is closed.
type Payload interface {
	Kind() Kind
	clone() Payload
}

// StrokePayload is the full point path of a finished freehand stroke.
type StrokePayload struct {
	Points []Point    `json:"points"`
	Color  string     `json:"color"`
	Width  float64    `json:"width"`
	Mode   StrokeMode `json:"mode"`
}

// StrokePayloadConfig describes the inputs required to build a StrokePayload.
type StrokePayloadConfig struct {
	Points []Point
	Color  string
	Width  float64
	Mode   string
}

// NewStrokePayload validates the configuration and returns a StrokePayload.
func NewStrokePayload(cfg StrokePayloadConfig) (StrokePayload, error) {
	if len(cfg.Points) == 0 {
		return StrokePayload{}, fmt.Errorf("%w: no points", ErrInvalidStroke)
	}
	if len(cfg.Points) > maxStrokePoints {
		return StrokePayload{}, fmt.Errorf("%w: exceeds %d points", ErrInvalidStroke, maxStrokePoints)
	}
	if cfg.Width <= 0 {
		return StrokePayload{}, fmt.Errorf("%w: width must be positive", ErrInvalidStroke)
	}
	mode, err := parseStrokeMode(cfg.Mode)
	if err != nil {
		return StrokePayload{}, err
	}
	color := strings.TrimSpace(cfg.Color)
	if color == "" && mode == StrokeModeNormal {
		return StrokePayload{}, fmt.Errorf("%w: empty color", ErrInvalidStroke)
	}
	if len(color) > maxColorLength {
		return StrokePayload{}, fmt.Errorf("%w: color exceeds %d characters", ErrInvalidStroke, maxColorLength)
	}
	points := make([]Point, len(cfg.Points))
	copy(points, cfg.Points)
	return StrokePayload{
		Points: points,
		Color:  color,
		Width:  cfg.Width,
		Mode:   mode,
	}, nil
}

// Kind reports KindFreehandStroke.
func (StrokePayload) Kind() Kind {
	return KindFreehandStroke
}

func (payload StrokePayload) clone() Payload {
	points := make([]Point, len(payload.Points))
	copy(points, payload.Points)
	payload.Points = points
	return payload
}

func parseStrokeMode(raw string) (StrokeMode, error) {
	switch StrokeMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrokeModeNormal:
		return StrokeModeNormal, nil
	case StrokeModeErase:
		return StrokeModeErase, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidStroke, raw)
	}
}

// ShapePayload is a shape inside its bounding box.
type ShapePayload struct {
	ShapeType ShapeType `json:"shapeType"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Color     string    `json:"color"`
	LineWidth float64   `json:"lineWidth"`
	Fill      bool      `json:"fill,omitempty"`
}

// ShapePayloadConfig describes the inputs required to build a ShapePayload.
type ShapePayloadConfig struct {
	ShapeType string
	X         float64
	Y         float64
	Width     float64
	Height    float64
	Color     string
	LineWidth float64
	Fill      bool
}

// NewShapePayload validates the configuration and returns a ShapePayload.
// Negative width or height are kept as-is; they describe a box dragged up or left.
func NewShapePayload(cfg ShapePayloadConfig) (ShapePayload, error) {
	var shapeType ShapeType
	switch ShapeType(strings.ToLower(strings.TrimSpace(cfg.ShapeType))) {
	case ShapeTypeRectangle:
		shapeType = ShapeTypeRectangle
	case ShapeTypeCircle:
		shapeType = ShapeTypeCircle
	case ShapeTypeEllipse:
		shapeType = ShapeTypeEllipse
	default:
		return ShapePayload{}, fmt.Errorf("%w: unknown shape type %q", ErrInvalidShape, cfg.ShapeType)
	}
	if cfg.LineWidth <= 0 {
		return ShapePayload{}, fmt.Errorf("%w: line width must be positive", ErrInvalidShape)
	}
	color := strings.TrimSpace(cfg.Color)
	if color == "" {
		return ShapePayload{}, fmt.Errorf("%w: empty color", ErrInvalidShape)
	}
	if len(color) > maxColorLength {
		return ShapePayload{}, fmt.Errorf("%w: color exceeds %d characters", ErrInvalidShape, maxColorLength)
	}
	return ShapePayload{
		ShapeType: shapeType,
		X:         cfg.X,
		Y:         cfg.Y,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Color:     color,
		LineWidth: cfg.LineWidth,
		Fill:      cfg.Fill,
	}, nil
}

// Kind reports KindShape.
func (ShapePayload) Kind() Kind {
	return KindShape
}

func (payload ShapePayload) clone() Payload {
	return payload
}

// TextPayload is a text label anchored at a position.
type TextPayload struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Text       string  `json:"text"`
	Color      string  `json:"color"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
}

// TextPayloadConfig describes the inputs required to build a TextPayload.
type TextPayloadConfig struct {
	X          float64
	Y          float64
	Text       string
	Color      string
	FontSize   float64
	FontFamily string
}

// NewTextPayload validates the configuration and returns a TextPayload.
func NewTextPayload(cfg TextPayloadConfig) (TextPayload, error) {
	if strings.TrimSpace(cfg.Text) == "" {
		return TextPayload{}, fmt.Errorf("%w: empty text", ErrInvalidText)
	}
	if utf8.RuneCountInString(cfg.Text) > maxTextLength {
		return TextPayload{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidText, maxTextLength)
	}
	if cfg.FontSize <= 0 {
		return TextPayload{}, fmt.Errorf("%w: font size must be positive", ErrInvalidText)
	}
	color := strings.TrimSpace(cfg.Color)
	if color == "" {
		return TextPayload{}, fmt.Errorf("%w: empty color", ErrInvalidText)
	}
	if len(color) > maxColorLength {
		return TextPayload{}, fmt.Errorf("%w: color exceeds %d characters", ErrInvalidText, maxColorLength)
	}
	fontFamily := strings.TrimSpace(cfg.FontFamily)
	if fontFamily == "" {
		fontFamily = defaultFontFamily
	}
	if len(fontFamily) > maxFontFamilySize {
		return TextPayload{}, fmt.Errorf("%w: font family exceeds %d characters", ErrInvalidText, maxFontFamilySize)
	}
	return TextPayload{
		X:          cfg.X,
		Y:          cfg.Y,
		Text:       cfg.Text,
		Color:      color,
		FontSize:   cfg.FontSize,
		FontFamily: fontFamily,
	}, nil
}

// Kind reports KindText.
func (TextPayload) Kind() Kind {
	return KindText
}

func (payload TextPayload) clone() Payload {
	return payload
}

// Element is one committed drawing action. Elements are never edited after commit.
type Element struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	Kind        Kind      `json:"kind"`
	Payload     Payload   `json:"payload"`
	CommittedAt time.Time `json:"committedAt"`
}

func (element Element) clone() Element {
	if element.Payload != nil {
		element.Payload = element.Payload.clone()
	}
	return element
}

// SnapshotElement is an element annotated with its author's display name at snapshot time.
type SnapshotElement struct {
	Element
	AuthorName string `json:"authorName"`
}
