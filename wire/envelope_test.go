package wire

import (
	"bytes"
	"testing"

	"github.com/sandialabs/faodel-sub003/cmn"
)

func TestSimpleBodyRoundTrip(t *testing.T) {
	in := SimpleBody{
		MetaPlusDataSize: 1234,
		Bucket:           0xdead,
		IomHash:          0xbeef,
		Behavior:         7,
		K1:               "row",
		K2:               "col",
		FnName:           "square",
		FnArgs:           []byte{1, 2, 3},
	}
	raw, err := in.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := UnmarshalSimpleBody(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.MetaPlusDataSize != in.MetaPlusDataSize || out.Bucket != in.Bucket || out.IomHash != in.IomHash || out.Behavior != in.Behavior ||
		out.K1 != in.K1 || out.K2 != in.K2 || out.FnName != in.FnName || !bytes.Equal(out.FnArgs, in.FnArgs) {
		t.Fatalf("round trip mismatch: %+v vs %+v", in, out)
	}
}

func TestSimpleBodyRejectsOversizedDeclaredLen(t *testing.T) {
	raw, err := SimpleBody{K1: "r", K2: "c"}.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	truncated := raw[:len(raw)-2]
	if _, err := UnmarshalSimpleBody(truncated); err == nil {
		t.Fatal("expected an error unmarshaling a truncated body")
	}
}

func TestBufferBodyRoundTrip(t *testing.T) {
	var nbr NetBufferRemote
	copy(nbr[:], []byte("opaque-handle"))
	in := BufferBody{NBR: nbr, MetaPlusDataSize: 99, Bucket: 1, IomHash: 2, Behavior: 3, K1: "r", K2: "c"}
	raw, err := in.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	out, err := UnmarshalBufferBody(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.K1 != in.K1 || out.K2 != in.K2 || out.NBR != in.NBR {
		t.Fatalf("round trip mismatch: %+v vs %+v", in, out)
	}
}

func TestStatusBodyRoundTrip(t *testing.T) {
	in := StatusBody{RemoteRC: -2, Info: ObjectInfoWire{RowUserBytes: 10, ColUserBytes: 5, RowNumColumns: 2, ColDependencies: 1, ColAvailability: 3}}
	raw := in.Marshal()
	out, err := UnmarshalStatusBody(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", in, out)
	}
}

func TestHeaderEncodeDecode(t *testing.T) {
	h := Header{
		Src: cmn.NodeID(1), Dst: cmn.NodeID(2),
		SrcMailbox: 10, DstMailbox: 0,
		OpID:      OpIDOf("OpKelpiePublish"),
		UserFlags: MakeCommandFlags(CmdPublish, false),
	}
	raw := Encode(h, []byte("body"))
	env, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if env.Header.Src != h.Src || env.Header.OpID != h.OpID || !env.Header.IsCommand() {
		t.Fatalf("decoded header mismatch: %+v", env.Header)
	}
	if env.Header.Command() != CmdPublish {
		t.Fatalf("expected CmdPublish, got %v", env.Header.Command())
	}
	if string(env.Body) != "body" {
		t.Fatalf("expected body %q, got %q", "body", env.Body)
	}
}

func TestDecodeRejectsBodyLenMismatch(t *testing.T) {
	h := Header{UserFlags: MakeStatusFlags(true, true)}
	raw := Encode(h, []byte("short"))
	raw = append(raw, 0xFF) // trailing garbage not reflected in BodyLen
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected body_len mismatch error")
	}
}
