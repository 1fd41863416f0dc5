package codegen

import "testing"

func TestAllocatorTempExhaustion(t *testing.T) {
	a := NewAllocator()
	for i := tempLo; i <= tempHi; i++ {
		if _, err := a.AllocTemp("f"); err != nil {
			t.Fatalf("unexpected exhaustion at temp %d: %v", i, err)
		}
	}
	if _, err := a.AllocTemp("f"); err == nil {
		t.Fatal("expected an error once all temporaries are allocated")
	}
}

func TestAllocatorLocalSpillsInsteadOfErroring(t *testing.T) {
	a := NewAllocator()
	for i := localLo; i <= localHi; i++ {
		if _, ok := a.AllocLocal(); !ok {
			t.Fatalf("unexpected exhaustion at local %d", i)
		}
	}
	if _, ok := a.AllocLocal(); ok {
		t.Fatal("expected the local pool to report exhaustion via ok=false")
	}
	slot1 := a.AllocSpillSlot()
	slot2 := a.AllocSpillSlot()
	if slot2 != slot1+4 {
		t.Errorf("got slots %d, %d; want consecutive 4-byte slots", slot1, slot2)
	}
}

func TestAllocatorFreeReusesRegister(t *testing.T) {
	a := NewAllocator()
	r1, _ := a.AllocTemp("f")
	a.FreeTemp(r1)
	r2, _ := a.AllocTemp("f")
	if r1 != r2 {
		t.Errorf("got %d then %d, want the freed register reused first", r1, r2)
	}
}

func TestAllocatorArgFifthSucceedsSixthFails(t *testing.T) {
	a := NewAllocator()
	for i := argLo; i <= argHi; i++ {
		if _, ok := a.AllocArg(); !ok {
			t.Fatalf("unexpected exhaustion at arg %d", i)
		}
	}
	if _, ok := a.AllocArg(); ok {
		t.Fatal("expected the sixth argument register allocation to fail")
	}
}

func TestAllocatorClassesAreIndependent(t *testing.T) {
	a := NewAllocator()
	temp, _ := a.AllocTemp("f")
	local, _ := a.AllocLocal()
	arg, _ := a.AllocArg()
	if temp == local || temp == arg || local == arg {
		t.Errorf("expected disjoint register classes, got temp=%d local=%d arg=%d", temp, local, arg)
	}
}
