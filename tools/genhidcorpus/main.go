// Command genhidcorpus encodes a YAML manifest of HID report descriptor
// samples (testdata/hid/corpus.yaml) into the raw short-item byte corpus
// device/usb/hid's round-trip test decodes, plus the (page, usage_min,
// usage_max, size, count) tuples a reference walk of that same manifest
// produces for every Main Input/Output item. The generated file is
// checked into the tree; rerun this tool by hand after editing the
// manifest.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"go/format"
	"os"

	"gopkg.in/yaml.v3"
)

// Short-item type field values (HID 1.11 section 6.2.2.2).
const (
	itemTypeMain   = 0
	itemTypeGlobal = 1
	itemTypeLocal  = 2
)

var globalTags = map[string]uint8{
	"usage_page":      0x0,
	"logical_minimum": 0x1,
	"logical_maximum": 0x2,
	"report_size":     0x7,
	"report_id":       0x8,
	"report_count":    0x9,
}

var localTags = map[string]uint8{
	"usage":         0x0,
	"usage_minimum": 0x1,
	"usage_maximum": 0x2,
}

var mainTags = map[string]uint8{
	"input":          0x8,
	"output":         0x9,
	"collection":     0xA,
	"feature":        0xB,
	"end_collection": 0xC,
}

type manifestItem struct {
	Kind  string `yaml:"kind"`
	Tag   string `yaml:"tag"`
	Value uint32 `yaml:"value"`
}

type manifestSample struct {
	Name     string         `yaml:"name"`
	Accepted bool           `yaml:"accepted"`
	Items    []manifestItem `yaml:"items"`
}

type manifest struct {
	Samples []manifestSample `yaml:"samples"`
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[genhidcorpus] error: %s\n", err.Error())
	os.Exit(1)
}

// encodeItem appends one short item's bytes to buf, choosing the
// smallest size field (0, 1, 2 or 4 bytes) that holds value, matching
// device/usb/hid's ReportDescriptor.GetNextItem decode.
func encodeItem(buf *bytes.Buffer, itemType, tag uint8, value uint32) {
	var size uint8
	var byteCount int
	switch {
	case value == 0:
		size, byteCount = 0, 0
	case value <= 0xFF:
		size, byteCount = 1, 1
	case value <= 0xFFFF:
		size, byteCount = 2, 2
	default:
		size, byteCount = 3, 4
	}
	buf.WriteByte(tag<<4 | itemType<<2 | size)
	for i := 0; i < byteCount; i++ {
		buf.WriteByte(byte(value >> (8 * uint(i))))
	}
}

// globalState and localState mirror device/usb/hid's parser.go state
// structs; this is a second, independent walk, not a call into the
// package under test.
type globalState struct {
	usagePage   uint32
	reportSize  uint32
	reportCount uint32
}

type localState struct {
	usageMinimum uint32
	usageMaximum uint32
}

type tuple struct {
	Page, UsageMin, UsageMax, Size, Count uint32
}

// encodeSample returns the raw descriptor bytes and, for an accepted
// sample, the tuples its Main Input/Output items produce.
func encodeSample(s manifestSample) ([]byte, []tuple, error) {
	var buf bytes.Buffer
	var tuples []tuple
	var g globalState
	var l localState

	for _, it := range s.Items {
		switch it.Kind {
		case "global":
			tag, ok := globalTags[it.Tag]
			if !ok {
				return nil, nil, fmt.Errorf("sample %q: unknown global tag %q", s.Name, it.Tag)
			}
			encodeItem(&buf, itemTypeGlobal, tag, it.Value)
			switch it.Tag {
			case "usage_page":
				g.usagePage = it.Value
			case "report_size":
				g.reportSize = it.Value
			case "report_count":
				g.reportCount = it.Value
			}

		case "local":
			tag, ok := localTags[it.Tag]
			if !ok {
				return nil, nil, fmt.Errorf("sample %q: unknown local tag %q", s.Name, it.Tag)
			}
			encodeItem(&buf, itemTypeLocal, tag, it.Value)
			switch it.Tag {
			case "usage_minimum":
				l.usageMinimum = it.Value
			case "usage_maximum":
				l.usageMaximum = it.Value
			case "usage":
				l.usageMinimum, l.usageMaximum = it.Value, it.Value
			}

		case "main":
			tag, ok := mainTags[it.Tag]
			if !ok {
				return nil, nil, fmt.Errorf("sample %q: unknown main tag %q", s.Name, it.Tag)
			}
			encodeItem(&buf, itemTypeMain, tag, it.Value)
			if it.Tag == "input" || it.Tag == "output" {
				tuples = append(tuples, tuple{
					Page:     g.usagePage,
					UsageMin: l.usageMinimum,
					UsageMax: l.usageMaximum,
					Size:     g.reportSize,
					Count:    g.reportCount,
				})
			}
			l = localState{}

		default:
			return nil, nil, fmt.Errorf("sample %q: unknown item kind %q", s.Name, it.Kind)
		}
	}

	if !s.Accepted {
		tuples = nil
	}
	return buf.Bytes(), tuples, nil
}

func generate(m manifest) ([]byte, error) {
	var out bytes.Buffer
	out.WriteString("// Code generated by tools/genhidcorpus from testdata/hid/corpus.yaml. DO NOT EDIT.\n\n")
	out.WriteString("package hid\n\n")
	out.WriteString("type corpusTuple struct {\n\tPage, UsageMin, UsageMax, Size, Count uint32\n}\n\n")
	out.WriteString("type corpusSample struct {\n\tName     string\n\tAccepted bool\n\tEncoded  []byte\n\tExpected []corpusTuple\n}\n\n")
	out.WriteString("var roundTripCorpus = []corpusSample{\n")

	for _, s := range m.Samples {
		encoded, tuples, err := encodeSample(s)
		if err != nil {
			return nil, err
		}

		fmt.Fprintf(&out, "\t{\n\t\tName:     %q,\n\t\tAccepted: %v,\n\t\tEncoded: []byte{", s.Name, s.Accepted)
		for i, b := range encoded {
			if i%12 == 0 {
				out.WriteString("\n\t\t\t")
			}
			fmt.Fprintf(&out, "0x%02x, ", b)
		}
		out.WriteString("\n\t\t},\n")

		if len(tuples) > 0 {
			out.WriteString("\t\tExpected: []corpusTuple{\n")
			for _, t := range tuples {
				fmt.Fprintf(&out, "\t\t\t{Page: 0x%x, UsageMin: 0x%x, UsageMax: 0x%x, Size: %d, Count: %d},\n",
					t.Page, t.UsageMin, t.UsageMax, t.Size, t.Count)
			}
			out.WriteString("\t\t},\n")
		}
		out.WriteString("\t},\n")
	}
	out.WriteString("}\n")

	return format.Source(out.Bytes())
}

func runTool() error {
	in := flag.String("in", "testdata/hid/corpus.yaml", "path to the corpus manifest")
	output := flag.String("out", "device/usb/hid/corpus_generated.go", "path to write the generated Go source")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "genhidcorpus: encode testdata/hid/corpus.yaml into device/usb/hid's round-trip corpus\n\n")
		fmt.Fprint(os.Stderr, "Usage: genhidcorpus [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	raw, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return err
	}
	if len(m.Samples) == 0 {
		return errors.New("manifest contains no samples")
	}

	src, err := generate(m)
	if err != nil {
		return err
	}

	return os.WriteFile(*output, src, 0o644)
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
