package canvas

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("element-%d", p.next), nil
}

type failingIDProvider struct{}

func (failingIDProvider) NewID() (string, error) {
	return "", errEntropyUnavailable
}

var errEntropyUnavailable = errors.New("entropy unavailable")

func mustAppend(t *testing.T, log *Log, authorID string, payload Payload) (Element, []Element) {
	t.Helper()
	element, evicted, err := log.Append(authorID, payload)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	return element, evicted
}

func fixedClock(value time.Time) func() time.Time {
	return func() time.Time {
		return value
	}
}

func newTestLog(maxElements int) *Log {
	return NewLog(LogConfig{
		IDProvider:  &sequenceIDProvider{},
		Clock:       fixedClock(time.Unix(1700000000, 0)),
		MaxElements: maxElements,
	})
}

func mustRectangle(t *testing.T, x float64) ShapePayload {
	t.Helper()
	shape, err := NewShapePayload(ShapePayloadConfig{
		ShapeType: "rectangle",
		X:         x,
		Y:         10,
		Width:     50,
		Height:    50,
		Color:     "#000",
		LineWidth: 2,
	})
	if err != nil {
		t.Fatalf("unexpected shape error: %v", err)
	}
	return shape
}

func mustStroke(t *testing.T, points ...Point) StrokePayload {
	t.Helper()
	stroke, err := NewStrokePayload(StrokePayloadConfig{
		Points: points,
		Color:  "#ff0000",
		Width:  3,
	})
	if err != nil {
		t.Fatalf("unexpected stroke error: %v", err)
	}
	return stroke
}
