// Package regalloc implements the linear-scan register allocator: it
// rewrites an instruction list over virtual host registers into one over
// only physical registers, inserting spills and reloads where register
// pressure forces eviction (spec.md §4.3).
//
// The contract is adapted from the callback shape used by mature
// multi-target backends (e.g. a CFG-based Function/Block/Instr API) down
// to spec.md's simpler scope: one flat instruction list per call, not a
// control-flow graph, since an IRBB never joins with another block.
package regalloc

import (
	"sort"

	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/internal/arena"
)

// Usage describes one instruction's register reads, writes, and
// read-modify-writes, the callback contract spec.md §4.3 calls
// `reg_usage(instr) → {read, written, modified}`. A register present in
// both Read and Written (e.g. a destructive 2-address ALU op's Dst) is
// modified, not merely written.
type Usage struct {
	Read     []hreg.Reg
	Written  []hreg.Reg
	Modified []hreg.Reg
}

// Instr is the minimal capability an instruction type must provide for
// allocation: its own register Defs/Uses, and the ability to be
// rewritten once physical assignments are known. This mirrors
// amd64.Instr's existing Defs/Uses/MapRegs/IsMove methods directly
// rather than asking every target to also produce a merged Usage
// triple; Allocate derives the read/written/modified split itself.
type Instr[I any] interface {
	Defs() []hreg.Reg
	Uses() []hreg.Reg
	MapRegs(remap func(hreg.Reg) hreg.Reg) I
	// IsMove reports (dst, src, true) when this instruction is a plain
	// register copy eligible for post-allocation coalescing, matching
	// amd64.Instr.IsMove's (Dst, Src, ok) return order.
	IsMove() (hreg.Reg, hreg.Reg, bool)
}

func usageOf[I Instr[I]](in I) Usage {
	defs := in.Defs()
	uses := in.Uses()
	inDefs := make(map[hreg.Reg]bool, len(defs))
	for _, r := range defs {
		inDefs[r] = true
	}
	var u Usage
	seenUse := make(map[hreg.Reg]bool, len(uses))
	for _, r := range uses {
		if seenUse[r] {
			continue
		}
		seenUse[r] = true
		if inDefs[r] {
			u.Modified = append(u.Modified, r)
		} else {
			u.Read = append(u.Read, r)
		}
	}
	seenDef := make(map[hreg.Reg]bool, len(defs))
	for _, r := range defs {
		if seenDef[r] || seenUse[r] {
			continue
		}
		seenDef[r] = true
		u.Written = append(u.Written, r)
	}
	return u
}

// SpillSlotGen builds the host instruction that spills phys (holding
// vreg's value) to slot, or reloads it back from slot into phys.
type SpillSlotGen[I any] func(class hreg.Class, phys hreg.Reg, slot int32) I

// Config bundles everything Allocate needs beyond the instruction list
// itself: per-class allocable physical register sets, spill/reload
// instruction generators, and the stack-frame offset the spill area
// starts at (spec.md §4.3 contract).
type Config[I any] struct {
	Allocable  map[hreg.Class][]hreg.Reg
	MakeSpill  SpillSlotGen[I]
	MakeReload SpillSlotGen[I]
	// SlotSize is the byte size of one spill slot; slot offsets returned
	// to MakeSpill/MakeReload are SpillBase - n*SlotSize for the nth slot
	// allocated in a class, counting from 1, so the first slot sits at
	// SpillBase - SlotSize (stack grows down).
	SlotSize int32
	SpillBase int32
}

type interval struct {
	reg      hreg.Reg
	defIdx   int
	useIdxs  []int
	lastUse  int
}

// Allocate runs the linear-scan algorithm of spec.md §4.3 over instrs,
// returning a new instruction list using only physical registers.
func Allocate[I Instr[I]](instrs []I, cfg Config[I]) []I {
	intervals := computeIntervals[I](instrs)

	freePool := make(map[hreg.Class][]hreg.Reg, len(cfg.Allocable))
	for class, regs := range cfg.Allocable {
		cp := make([]hreg.Reg, len(regs))
		copy(cp, regs)
		freePool[class] = cp
	}

	type activeEntry struct {
		phys hreg.Reg
		end  int
	}
	active := make(map[hreg.Reg]activeEntry)  // vreg -> residency
	spilled := make(map[hreg.Reg]int32)       // vreg -> spill slot offset
	spillFree := make(map[hreg.Class][]int32) // free slots per class, LIFO
	nextSlot := make(map[hreg.Class]int32)

	byDef := make(map[int][]*interval)
	byLastUse := make(map[hreg.Reg]int)
	for _, iv := range intervals {
		byDef[iv.defIdx] = append(byDef[iv.defIdx], iv)
		byLastUse[iv.reg] = iv.lastUse
	}

	var out []I

	// spillVreg emits the spill of vreg (resident in phys) and records its
	// new stack location, reusing a free slot of its class in LIFO order
	// before growing the spill area (spec.md §4.3 "Spill slots are reused
	// in LIFO order per class").
	spillVreg := func(vreg hreg.Reg, phys hreg.Reg) {
		class := vreg.Class()
		var slot int32
		if free := spillFree[class]; len(free) > 0 {
			slot = free[len(free)-1]
			spillFree[class] = free[:len(free)-1]
		} else {
			slot = nextSlot[class]
			nextSlot[class] = slot + cfg.SlotSize
		}
		out = append(out, cfg.MakeSpill(class, phys, cfg.SpillBase-slot-cfg.SlotSize))
		spilled[vreg] = slot
	}

	// allocPhys hands out a physical register of class, never one in
	// forbidden — the set of registers the current instruction mandates
	// physically (e.g. rax/rdx around IDiv) — so a reload or coalescing
	// decision made later in the same instruction's processing can never
	// collide with that instruction's own fixed register usage.
	allocPhys := func(class hreg.Class, forbidden []hreg.Reg) hreg.Reg {
		isForbidden := func(r hreg.Reg) bool {
			for _, f := range forbidden {
				if r.Eq(f) {
					return true
				}
			}
			return false
		}
		pool := freePool[class]
		for i := len(pool) - 1; i >= 0; i-- {
			if isForbidden(pool[i]) {
				continue
			}
			r := pool[i]
			freePool[class] = append(pool[:i], pool[i+1:]...)
			return r
		}
		// No free physical register: evict the active vreg of this class
		// with the latest ending position (spec.md §4.3 step 3), skipping
		// any candidate whose physical register is itself forbidden.
		var victim hreg.Reg
		victimEnd := -1
		found := false
		for vreg, ent := range active {
			if vreg.Class() != class || isForbidden(ent.phys) {
				continue
			}
			if ent.end > victimEnd {
				victimEnd = ent.end
				victim = vreg
				found = true
			}
		}
		if !found {
			panic("regalloc: allocable set exhausted with no eligible active vreg of this class to spill (front-end produced more live values than the target has registers and stack spilling is not possible here)")
		}
		phys := active[victim].phys
		delete(active, victim)
		spillVreg(victim, phys)
		return phys
	}

	freePhysAt := func(atIdx int) {
		for vreg, ent := range active {
			if ent.end < atIdx {
				freePool[vreg.Class()] = append(freePool[vreg.Class()], ent.phys)
				delete(active, vreg)
			}
		}
	}

	for i, in := range instrs {
		freePhysAt(i)

		usage := usageOf[I](in)
		allRefs := append(append(append([]hreg.Reg{}, usage.Read...), usage.Written...), usage.Modified...)
		var mandatoryPhys []hreg.Reg
		for _, r := range allRefs {
			if !r.IsVirtual() {
				mandatoryPhys = append(mandatoryPhys, r)
			}
		}

		// Evict any active vreg sitting in a register this instruction
		// mandates physically (e.g. rax/rdx for IDiv, rcx for a variable
		// shift, r11 for an indirect call).
		for _, r := range mandatoryPhys {
			for vreg, ent := range active {
				if ent.phys.Eq(r) {
					delete(active, vreg)
					spillVreg(vreg, ent.phys)
				}
			}
		}

		// Move coalescing hint: if this instruction is a plain register
		// copy and its source vreg's last use is right here, hand the
		// destination the exact same physical register instead of
		// allocating a fresh one — after MapRegs this turns the copy into
		// a self-move, which is then deleted below (spec.md §4.3 "Move
		// coalescing").
		var coalesceSrc hreg.Reg
		var coalesceDst hreg.Reg
		haveCoalesceHint := false
		if rawDst, rawSrc, ok := in.IsMove(); ok && rawSrc.IsVirtual() && rawDst.IsVirtual() {
			if ent, isActive := active[rawSrc]; isActive && byLastUse[rawSrc] == i {
				coalesceSrc, coalesceDst = rawSrc, rawDst
				haveCoalesceHint = true
				active[rawDst] = activeEntry{phys: ent.phys, end: byLastUse[rawDst]}
			}
		}

		// Definitions: allocate a fresh physical register for each vreg
		// this instruction writes, except one already handed a register
		// via the coalescing hint above.
		for _, iv := range byDef[i] {
			if haveCoalesceHint && iv.reg.Eq(coalesceDst) {
				continue
			}
			phys := allocPhys(iv.reg.Class(), mandatoryPhys)
			active[iv.reg] = activeEntry{phys: phys, end: iv.lastUse}
		}

		// Uses: reload anything currently spilled. Modified registers
		// (read-modify-write, e.g. a destructive ALU Dst) are uses of an
		// already-existing vreg just as much as plain reads are.
		reads := append(append([]hreg.Reg{}, usage.Read...), usage.Modified...)
		for _, r := range reads {
			if !r.IsVirtual() {
				continue
			}
			if _, ok := active[r]; ok {
				continue
			}
			slot, wasSpilled := spilled[r]
			if !wasSpilled {
				// First use coincides with definition (read-modify-write
				// already handled by byDef above) or a genuine front-end
				// bug; either way there is nothing to reload.
				continue
			}
			phys := allocPhys(r.Class(), mandatoryPhys)
			out = append(out, cfg.MakeReload(r.Class(), phys, cfg.SpillBase-slot-cfg.SlotSize))
			spillFree[r.Class()] = append(spillFree[r.Class()], slot)
			delete(spilled, r)
			active[r] = activeEntry{phys: phys, end: byLastUse[r]}
		}

		remap := func(r hreg.Reg) hreg.Reg {
			if !r.IsVirtual() {
				return r
			}
			if ent, ok := active[r]; ok {
				return ent.phys
			}
			panic("regalloc: virtual register read with no live physical assignment at this point (front-end produced a use not dominated by its definition)")
		}
		rewritten := in.MapRegs(remap)

		if haveCoalesceHint {
			delete(active, coalesceSrc) // its value now lives on only as coalesceDst
		}

		if dst, src, ok := rewritten.IsMove(); ok && dst.Eq(src) {
			continue // move-coalesced away (spec.md §4.3 "Move coalescing")
		}
		out = append(out, rewritten)
	}

	return out
}

// computeIntervals performs one forward sweep covering spec.md §4.3 steps
// 1-2: for each virtual register, its single definition index
// (the selector allocates a fresh vreg per value, so defIdx is unique)
// and the sorted list of instruction indices that read it. The interval
// records themselves live in a bump arena: they're scratch state for
// exactly one Allocate call and thrown away in bulk when it returns
// (spec.md §9 "Cyclic object graphs" design note).
func computeIntervals[I Instr[I]](instrs []I) []*interval {
	defIdx := make(map[hreg.Reg]int)
	uses := make(map[hreg.Reg][]int)

	for i, in := range instrs {
		u := usageOf[I](in)
		for _, r := range u.Written {
			if r.IsVirtual() {
				defIdx[r] = i
			}
		}
		for _, r := range u.Modified {
			if r.IsVirtual() {
				if _, ok := defIdx[r]; !ok {
					defIdx[r] = i
				}
				uses[r] = append(uses[r], i)
			}
		}
		for _, r := range u.Read {
			if r.IsVirtual() {
				uses[r] = append(uses[r], i)
			}
		}
	}

	a := arena.New[interval](64)
	out := make([]*interval, 0, len(defIdx))
	for r, d := range defIdx {
		us := uses[r]
		sort.Ints(us)
		last := d
		if len(us) > 0 {
			last = us[len(us)-1]
		}
		iv := a.Alloc()
		*iv = interval{reg: r, defIdx: d, useIdxs: us, lastUse: last}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].defIdx < out[j].defIdx })
	return out
}
