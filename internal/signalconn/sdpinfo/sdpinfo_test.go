package sdpinfo

import "testing"

const sampleSDP = `v=0
o=- 0 0 IN IP4 127.0.0.1
s=-
c=IN IP4 127.0.0.1
t=0 0
m=audio 49170 RTP/AVP 0
m=video 51372 RTP/AVP 31
`

func TestSummarizeParsesMediaLines(t *testing.T) {
	got := Summarize(sampleSDP)
	want := "audio/0 video/31"
	if got != want {
		t.Errorf("Summarize() = %q, want %q", got, want)
	}
}

func TestSummarizeUnparsable(t *testing.T) {
	if got := Summarize("not sdp at all"); got != "(unparsed sdp)" {
		t.Errorf("Summarize(garbage) = %q, want (unparsed sdp)", got)
	}
}
