package httprange

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseClosedRange(t *testing.T) {
	got, err := Parse("bytes=0-499")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []Range{{Kind: KindRange, From: 0, To: 499}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseSuffix(t *testing.T) {
	got, err := Parse("bytes=-500")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []Range{{Kind: KindSuffix, To: 500}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParsePrefix(t *testing.T) {
	got, err := Parse("bytes=500-")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []Range{{Kind: KindPrefix, From: 500}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseMultiRangeThenSuffixStops(t *testing.T) {
	got, err := Parse("bytes=0-0,-1")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []Range{
		{Kind: KindRange, From: 0, To: 0},
		{Kind: KindSuffix, To: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseInvalidNumber(t *testing.T) {
	_, err := Parse("bytes=x-y")
	var numErr *InvalidNumberError
	if !errors.As(err, &numErr) {
		t.Fatalf("err = %v, want *InvalidNumberError", err)
	}
}

func TestParseMalformedSingleTokenIsInvalidRange(t *testing.T) {
	_, err := Parse("bytes=abc")
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}

func TestParseMissingPrefix(t *testing.T) {
	_, err := Parse("0-499")
	if !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("err = %v, want ErrInvalidHeader", err)
	}
}

func TestParseWrongPartCount(t *testing.T) {
	_, err := Parse("bytes=0-1-2")
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}
