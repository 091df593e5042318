package boxcontroller

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

/*
Persisted form, embedded as a sub-block of the workspace file:

	<BoxController>
	  <NumDims>3</NumDims>
	  <MaxId>73</MaxId>
	  <SplitThreshold>1024</SplitThreshold>
	  <SignificantEventsNumber>10000000</SignificantEventsNumber>
	  <MaxDepth>5</MaxDepth>
	  <SplitInto>2,2,2</SplitInto>
	  <SplitTopInto>4,4,1</SplitTopInto>         (only when set)
	  <AddingEventsPerTask>1000</AddingEventsPerTask>
	  <AddingEventsNumTasksPerBlock>40</AddingEventsNumTasksPerBlock>
	</BoxController>

Box statistics are not persisted; loading resets them for the restored max
depth and the owner rebuilds them from its tree.
*/

type serializedController struct {
	XMLName                      xml.Name `xml:"BoxController"`
	NumDims                      int      `xml:"NumDims"`
	MaxID                        uint64   `xml:"MaxId"`
	SplitThreshold               uint64   `xml:"SplitThreshold"`
	SignificantEventsNumber      *uint64  `xml:"SignificantEventsNumber"`
	MaxDepth                     int      `xml:"MaxDepth"`
	SplitInto                    string   `xml:"SplitInto"`
	SplitTopInto                 string   `xml:"SplitTopInto,omitempty"`
	AddingEventsPerTask          *uint64  `xml:"AddingEventsPerTask"`
	AddingEventsNumTasksPerBlock *uint64  `xml:"AddingEventsNumTasksPerBlock"`
}

// ToSerializedForm encodes the configuration and id counter as XML.
func (bc *BoxController) ToSerializedForm() string {
	s := serializedController{
		NumDims:                      bc.numDims,
		MaxID:                        bc.MaxID(),
		SplitThreshold:               bc.splitThreshold,
		SignificantEventsNumber:      &bc.significantEventsNumber,
		MaxDepth:                     bc.maxDepth,
		SplitInto:                    joinInts(bc.splitInto),
		AddingEventsPerTask:          &bc.addingEventsPerTask,
		AddingEventsNumTasksPerBlock: &bc.addingEventsNumTasksPerBlock,
	}
	if bc.splitTopInto != nil {
		s.SplitTopInto = joinInts(bc.splitTopInto)
	}

	out, err := xml.MarshalIndent(s, "", "  ")
	if err != nil {
		// only plain integers and strings are marshalled
		panic(fmt.Sprintf("boxcontroller: marshal: %v", err))
	}
	return string(out)
}

// FromSerializedForm replaces the configuration with the one encoded in data,
// restores the id counter and resets the box statistics. On error nothing is
// changed. The file backing is left as it is.
func (bc *BoxController) FromSerializedForm(data string) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}

	var s serializedController
	if err := xml.Unmarshal([]byte(data), &s); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSerialization, err)
	}
	if s.NumDims < 1 || s.NumDims > MaxSupportedDims {
		return fmt.Errorf("%w: NumDims %d outside [1, %d]", ErrMalformedSerialization, s.NumDims, MaxSupportedDims)
	}
	if s.MaxDepth < 0 || s.MaxDepth > MaxSupportedDepth {
		return fmt.Errorf("%w: MaxDepth %d outside [0, %d]", ErrMalformedSerialization, s.MaxDepth, MaxSupportedDepth)
	}
	splitInto, err := parseInts(s.SplitInto, s.NumDims)
	if err != nil {
		return fmt.Errorf("%w: SplitInto: %w", ErrMalformedSerialization, err)
	}
	if _, ok := checkedProduct(splitInto); !ok {
		return fmt.Errorf("%w: SplitInto %s overflows the box count", ErrMalformedSerialization, s.SplitInto)
	}
	var splitTopInto []int
	if strings.TrimSpace(s.SplitTopInto) != "" {
		splitTopInto, err = parseInts(s.SplitTopInto, s.NumDims)
		if err != nil {
			return fmt.Errorf("%w: SplitTopInto: %w", ErrMalformedSerialization, err)
		}
		if _, ok := checkedProduct(splitTopInto); !ok {
			return fmt.Errorf("%w: SplitTopInto %s overflows the box count", ErrMalformedSerialization, s.SplitTopInto)
		}
	}

	bc.numDims = s.NumDims
	bc.splitThreshold = s.SplitThreshold
	bc.significantEventsNumber = valueOr(s.SignificantEventsNumber, DefaultSignificantEventsNumber)
	bc.maxDepth = s.MaxDepth
	bc.splitInto = splitInto
	bc.splitTopInto = splitTopInto
	bc.addingEventsPerTask = positiveOr(s.AddingEventsPerTask, DefaultAddingEventsPerTask)
	bc.addingEventsNumTasksPerBlock = positiveOr(s.AddingEventsNumTasksPerBlock, defaultTasksPerBlock())

	bc.calcNumSplit()
	bc.ResetNumBoxes()
	bc.SetMaxID(s.MaxID)
	return nil
}

// Parse builds a new controller from its serialized form.
func Parse(data string) (*BoxController, error) {
	bc := New(1)
	if err := bc.FromSerializedForm(data); err != nil {
		return nil, err
	}
	return bc, nil
}

// valueOr fills in elements missing from older files.
func valueOr(v *uint64, fallback uint64) uint64 {
	if v == nil {
		return fallback
	}
	return *v
}

func positiveOr(v *uint64, fallback uint64) uint64 {
	if v == nil || *v == 0 {
		return fallback
	}
	return *v
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func parseInts(s string, want int) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != want {
		return nil, fmt.Errorf("%d values for %d dimensions", len(parts), want)
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, fmt.Errorf("fan-out %d must be at least 1", n)
		}
		out[i] = n
	}
	return out, nil
}
