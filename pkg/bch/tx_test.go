package bch

import (
	"bytes"
	"testing"
)

// Satoshi's first payment to Hal Finney (block 170), shared history of BTC and BCH.
const block170Tx = "0100000001c997a5e56e104102fa209c6a852dd90660a20b2d9c352423edce25857fcd3704000000004847304402204e45e16932b8af514961a1d3a1a25fdf3f4f7732e9d624c6c61548ab5fb8cd410220181522ec8eca07de4860a4acdd12909d831cc56cbbac4622082221a8768d1d0901ffffffff0200ca9a3b00000000434104ae1a62fe09c5f51b13905f07f06b99a2f7159b2225f374cd378d71302fa28414e7aab37397f554a7df5f142c21c1b7303b8a0626f1baded5c72a704f7e6cd84cac00286bee0000000043410411db93e1dcdb8a016b49840f8c53bc1eb68a382e97b1482ecad7b148a6909a5cb2e0eaddfb84ccf9744464f82e160bfa9b8b64f9d4c03f999b8643f656b412a3ac00000000"

func TestDecodeTx(t *testing.T) {
	tx, err := DecodeTx(hx2b(block170Tx))
	if err != nil {
		t.Fatalf("DecodeTx: %v", err)
	}
	if tx.TxID != "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16" {
		t.Errorf("DecodeTx: wrong txid: %s", tx.TxID)
	}
	if len(tx.Inputs) != 1 || len(tx.Outputs) != 2 {
		t.Fatalf("DecodeTx: wrong shape: %d in, %d out", len(tx.Inputs), len(tx.Outputs))
	}
	if tx.Inputs[0].PrevTxID != "0437cd7f8525ceed2324359c2d0ba26006d92d856a9c20fa0241106ee5a597c9" {
		t.Errorf("DecodeTx: wrong prev txid: %s", tx.Inputs[0].PrevTxID)
	}
	if tx.Outputs[0].Value != 1000000000 || tx.Outputs[1].Value != 4000000000 {
		t.Errorf("DecodeTx: wrong values: %d %d", tx.Outputs[0].Value, tx.Outputs[1].Value)
	}
}

func TestEncodeTxRoundTrip(t *testing.T) {
	raw := hx2b(block170Tx)
	tx, err := DecodeTx(raw)
	if err != nil {
		t.Fatalf("DecodeTx: %v", err)
	}
	enc, err := EncodeTx(tx)
	if err != nil {
		t.Fatalf("EncodeTx: %v", err)
	}
	if !bytes.Equal(enc, raw) {
		t.Errorf("EncodeTx: bytes differ from original")
	}
}

func TestDecodeTxTruncated(t *testing.T) {
	raw := hx2b(block170Tx)
	if _, err := DecodeTx(raw[:len(raw)-3]); err == nil {
		t.Errorf("DecodeTx: expected error for truncated tx")
	}
	if _, err := DecodeTx(append(raw, 0x00)); err == nil {
		t.Errorf("DecodeTx: expected error for trailing bytes")
	}
}
