package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenTraceLab/jtagchain/pkg/bsdl"
	"github.com/OpenTraceLab/jtagchain/pkg/cable"
)

const (
	stm32File = "../bsdl/testdata/STM32F4_LQFP64_trimmed.bsd"
	cpldFile  = "../bsdl/testdata/user_cpld.bsdl"
)

func TestMemoryRepositoryWildcardLookup(t *testing.T) {
	repo := NewMemoryRepository()
	if err := repo.LoadFiles(stm32File, cpldFile); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if repo.Len() != 2 {
		t.Fatalf("Len = %d", repo.Len())
	}
	// The STM32 file leaves the version field open.
	for _, id := range []uint32{0x06413041, 0x16413041, 0xF6413041} {
		d, ok := repo.Lookup(id)
		if !ok || d.Entity != "STM32F405_LQFP64" {
			t.Fatalf("Lookup(0x%08X) = %v, %v", id, d, ok)
		}
	}
	if d, ok := repo.Lookup(0x1002A093); !ok || d.Entity != "USER_CPLD" {
		t.Fatalf("exact lookup = %v, %v", d, ok)
	}
	if _, ok := repo.Lookup(0x2002A093); ok {
		t.Fatal("exact entry matched another version")
	}
}

func TestMemoryRepositoryAddRequiresIDCode(t *testing.T) {
	repo := NewMemoryRepository()
	if err := repo.Add(&bsdl.Description{Entity: "NOID", IRLength: 2}); err == nil {
		t.Fatal("description without IDCODE accepted")
	}
	if err := repo.Add(nil); err == nil {
		t.Fatal("nil description accepted")
	}
}

func TestMemoryRepositoryLoadDir(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(cpldFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sub := filepath.Join(dir, "xilinx")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	files := map[string][]byte{
		filepath.Join(sub, "cpld.BSD"):     src,
		filepath.Join(dir, "broken.bsdl"): []byte("entity BROKEN is"),
		filepath.Join(dir, "notes.txt"):   []byte("not a BSDL file"),
	}
	for path, data := range files {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	repo := NewMemoryRepository()
	if err := repo.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if repo.Len() != 1 {
		t.Fatalf("loaded %d descriptions", repo.Len())
	}
	if err := repo.LoadDir(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("missing directory accepted")
	}
}

func TestDetectWithRepository(t *testing.T) {
	repo := NewMemoryRepository()
	if err := repo.LoadFiles(stm32File); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	stm32 := cable.SimPart{IDCode: 0x06413041, IRLength: 5, IDCodeOpcode: 0x1}
	target, ch := newSimChain(t, repo, bypassPart, stm32)
	parts := detect(t, ch)
	p := parts[1]
	if p.Entity() != "STM32F405_LQFP64" || p.IRLength() != 5 {
		t.Fatalf("part 1 = %s", p)
	}
	if r, ok := p.Register(RegisterBoundary); !ok || r.Len() != 8 {
		t.Fatalf("BOUNDARY register = %v, %v", r, ok)
	}
	if got := p.Instructions(); len(got) != 5 {
		t.Fatalf("instructions = %v", got)
	}
	// The BYPASS part's IR length is what is left over.
	if parts[0].IRLength() != 4 {
		t.Fatalf("part 0 IR = %d", parts[0].IRLength())
	}

	if err := ch.SelectPart(1); err != nil {
		t.Fatalf("SelectPart: %v", err)
	}
	if err := ch.SetInstruction("IDCODE"); err != nil {
		t.Fatalf("SetInstruction: %v", err)
	}
	if err := ch.ShiftIR(); err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	if target.Instruction(1) != 0x1 {
		t.Fatalf("opcode 0x%X", target.Instruction(1))
	}
	if err := ch.ShiftDR(); err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	out, err := ch.GetDROut()
	if err != nil || out.Uint() != 0x06413041 {
		t.Fatalf("IDCODE = %v, %v", out, err)
	}
}
