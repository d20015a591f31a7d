package hid

import "testing"

// captureDevice is fakeDevice's sibling for the round-trip corpus: it
// accepts every page encountered after instantiation (the corpus
// exercises the parser's decode, not Keyboard's own usage restrictions)
// and records every Input/Output item's tuple in dispatch order.
type captureDevice struct {
	tuples []corpusTuple
}

func (c *captureDevice) DeviceClass() DeviceClass                       { return DeviceClassKeyboard }
func (c *captureDevice) IsUsageSupported(page, usage uint32) bool       { return true }
func (c *captureDevice) IsReportSupported(reportID uint32, input bool) bool { return true }
func (c *captureDevice) MaxReportSize() int                             { return 1 }

func (c *captureDevice) addTuple(state HIDState) bool {
	c.tuples = append(c.tuples, corpusTuple{
		Page:     state.Global.UsagePage,
		UsageMin: state.Local.UsageMinimum,
		UsageMax: state.Local.UsageMaximum,
		Size:     state.Global.ReportSize,
		Count:    state.Global.ReportCount,
	})
	return true
}

func (c *captureDevice) AddInput(state HIDState, config IOConfiguration) bool  { return c.addTuple(state) }
func (c *captureDevice) AddOutput(state HIDState, config IOConfiguration) bool { return c.addTuple(state) }
func (c *captureDevice) StartCollection(state HIDState, kind CollectionType) bool { return true }
func (c *captureDevice) EndCollection() bool                                  { return true }
func (c *captureDevice) HandleReport(reportID uint8, data []byte)             {}
func (c *captureDevice) Release()                                            {}

func tuplesEqual(got, want []corpusTuple) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// TestRoundTripCorpus is property test 7: for every accepted descriptor
// in the corpus, the tuples the parser's dispatch produces equal the
// tuples tools/genhidcorpus computed independently from the same
// manifest; every rejected descriptor must fail to parse.
func TestRoundTripCorpus(t *testing.T) {
	for _, sample := range roundTripCorpus {
		sample := sample
		t.Run(sample.Name, func(t *testing.T) {
			capture := &captureDevice{}
			parser := NewReportParser(NewReportDescriptor(sample.Encoded))
			hierarchy, err := parser.Parse(func() InterfaceDevice { return capture })

			if !sample.Accepted {
				if err == nil {
					t.Fatalf("expected sample %q to be rejected", sample.Name)
				}
				return
			}

			if err != nil {
				t.Fatalf("expected sample %q to be accepted, got error: %v", sample.Name, err)
			}
			defer hierarchy.Release()

			if !tuplesEqual(capture.tuples, sample.Expected) {
				t.Fatalf("sample %q: tuples = %+v, want %+v", sample.Name, capture.tuples, sample.Expected)
			}
		})
	}
}
