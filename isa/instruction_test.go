package isa

import "testing"

func TestEncodeDecodeRR(t *testing.T) {
	instr := Encode(OpA, LV(2), LV(0), LV(1))
	if instr.Opcode() != OpA {
		t.Fatalf("expected opcode OpA, got %v", instr.Opcode())
	}
	if instr.RT() != LV(2) || instr.RA() != LV(0) || instr.RB() != LV(1) {
		t.Fatalf("register fields did not round-trip: rt=%d ra=%d rb=%d", instr.RT(), instr.RA(), instr.RB())
	}
}

func TestEncodeDecodeRI10Signed(t *testing.T) {
	instr := EncodeRI10(OpAI, LV(0), LV(0), -17)
	if got := instr.Imm10(); got != -17 {
		t.Fatalf("expected imm10 -17, got %d", got)
	}
}

func TestEncodeDecodeRI16Signed(t *testing.T) {
	instr := EncodeRI16(OpBR, RegLR, -1000)
	if got := instr.Imm16(); got != -1000 {
		t.Fatalf("expected imm16 -1000, got %d", got)
	}
}

func TestWithImm10Patches(t *testing.T) {
	instr := EncodeRI10(OpAI, LV(0), RegSP, 0)
	patched := instr.WithImm10(-5)
	if got := patched.Imm10(); got != -5 {
		t.Fatalf("expected patched imm10 -5, got %d", got)
	}
	// patching must not disturb RT/RA
	if patched.RT() != LV(0) || patched.RA() != RegSP {
		t.Fatalf("patch disturbed register fields")
	}
}

func TestWithImm16Patches(t *testing.T) {
	instr := EncodeRI16(OpBRSL, RegLR, 0)
	patched := instr.WithImm16(1234)
	if got := patched.Imm16(); got != 1234 {
		t.Fatalf("expected patched imm16 1234, got %d", got)
	}
}

func TestWithRTPatchesBootloaderSelfModify(t *testing.T) {
	instr := EncodeRI10(OpLQD, Arg(0), RegSP, 0)
	next := instr.WithRT(Arg(1))
	if next.RT() != Arg(1) {
		t.Fatalf("expected rt patched to Arg(1), got %d", next.RT())
	}
	restored := next.WithRT(Arg(0))
	if restored != instr {
		t.Fatalf("restoring rt did not reproduce original instruction: got %08x want %08x", uint32(restored), uint32(instr))
	}
}

func TestEncodeDecodeRotqbyi(t *testing.T) {
	instr := EncodeRI10(OpROTQBYI, LV(0), LV(1), 2)
	if instr.Opcode() != OpROTQBYI {
		t.Fatalf("expected opcode OpROTQBYI, got %v", instr.Opcode())
	}
	if instr.RT() != LV(0) || instr.RA() != LV(1) {
		t.Fatalf("register fields did not round-trip: rt=%d ra=%d", instr.RT(), instr.RA())
	}
	if got := instr.Imm10(); got != 2 {
		t.Fatalf("expected word-index immediate 2, got %d", got)
	}
}

func TestFits10And16(t *testing.T) {
	if !Fits10(511) || !Fits10(-512) || Fits10(512) || Fits10(-513) {
		t.Fatalf("Fits10 boundary check failed")
	}
	if !Fits16(32767) || !Fits16(-32768) || Fits16(32768) || Fits16(-32769) {
		t.Fatalf("Fits16 boundary check failed")
	}
}

func TestEndiannessRoundTrip(t *testing.T) {
	instr := Encode(OpA, LV(2), LV(0), LV(1))
	var be [4]byte
	be[0] = byte(instr >> 24)
	be[1] = byte(instr >> 16)
	be[2] = byte(instr >> 8)
	be[3] = byte(instr)
	got := Instruction(uint32(be[0])<<24 | uint32(be[1])<<16 | uint32(be[2])<<8 | uint32(be[3]))
	if got != instr {
		t.Fatalf("big-endian round trip mismatch: got %08x want %08x", uint32(got), uint32(instr))
	}
}
