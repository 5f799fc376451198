package stackgen

// ShuffleCallbacks are the four primitive stack operations the shuffler
// drives. Depths passed to Swap and Dup are one-based, counted from the
// top: the top element is depth 1, and Swap(k) exchanges the top with the
// element k below it (so Swap(1) swaps the top two slots, mirroring SWAP1).
// Dup(k) duplicates the element at depth k onto the top, mirroring DUPk.
//
// The same callback shape is used by the layout generator's cost estimator
// (which only tallies operations and flags depth > 16) and by the code
// transform's emitter (which appends real instructions).
type ShuffleCallbacks struct {
	Swap func(depth int)
	Dup  func(depth int)
	Push func(slot StackSlot)
	Pop  func()
}

// createStackLayout mechanically transforms current into target using only
// the four callbacks, and returns the resulting stack (which equals target
// on success). It never fabricates a non-regenerable slot: a target slot
// that is not Regenerable must already be reachable somewhere in current,
// in accordance with the shuffler's totality precondition (the multiset of
// non-regenerable target slots is a subset of current's).
//
// The decision rule below is a direct transliteration of the Yul code
// generator's createStackLayout: at every step, either the top is removed
// because it is a surplus copy, duplicated/pushed/swapped into place, or the
// whole stack is already equal to target. Each branch strictly decreases the
// potential described in the design notes, so the loop terminates.
func createStackLayout(current Stack, target Stack, cb ShuffleCallbacks) Stack {
	cur := current.Clone()

	for {
		if cur.Equal(target) {
			return cur
		}

		if len(cur) == 0 {
			slot := target[len(cur)]
			cb.Push(slot)
			cur = append(cur, slot)
			continue
		}

		top := cur[len(cur)-1]

		// Step 3: top is a surplus copy relative to what target still wants.
		if len(Offsets(top, target)) < len(Offsets(top, cur)) {
			cb.Pop()
			cur = cur[:len(cur)-1]
			continue
		}

		// Step 4: top is already in its final position.
		if len(target) >= len(cur) && target[len(cur)-1].Equal(top) {
			if slot, depth, ok := shallowestUnderrepresented(cur, target); ok {
				cb.Dup(depth)
				cur = append(cur, slot)
				continue
			}
			if slot, ok := firstMissing(cur, target); ok {
				cb.Push(slot)
				cur = append(cur, slot)
				continue
			}
			if i, ok := deepestMismatch(cur, target, top); ok {
				k := len(cur) - i - 1
				cb.Swap(k)
				cur[i], cur[len(cur)-1] = cur[len(cur)-1], cur[i]
				continue
			}
			return cur
		}

		// Step 5: top is not in place; try to thread it to a target position
		// it occupies there.
		moved := false
		for _, i := range Offsets(top, target) {
			if i >= len(cur) {
				break
			}
			if !cur[i].Equal(target[i]) {
				k := len(cur) - i - 1
				cb.Swap(k)
				cur[i], cur[len(cur)-1] = cur[len(cur)-1], cur[i]
				moved = true
				break
			}
		}
		if moved {
			continue
		}

		if slot, depth, ok := shallowestUnderrepresented(cur, target); ok {
			cb.Dup(depth)
			cur = append(cur, slot)
			continue
		}
		if slot, ok := firstMissing(cur, target); ok {
			cb.Push(slot)
			cur = append(cur, slot)
			continue
		}
		// Unreachable under the totality precondition: nothing left to
		// dup or push, yet current != target.
		return cur
	}
}

// shallowestUnderrepresented finds the first slot (scanning from the
// bottom) whose count in cur is less than its count in target, and returns
// it together with the one-based depth of its shallowest (topmost)
// occurrence in cur.
func shallowestUnderrepresented(cur Stack, target Stack) (StackSlot, int, bool) {
	for i, slot := range cur {
		if len(Offsets(slot, cur)) < len(Offsets(slot, target)) {
			shallowest := i
			for _, o := range Offsets(slot, cur) {
				if o > shallowest {
					shallowest = o
				}
			}
			depth := len(cur) - shallowest
			return slot, depth, true
		}
	}
	return StackSlot{}, 0, false
}

// firstMissing finds the first target slot absent from cur entirely.
func firstMissing(cur Stack, target Stack) (StackSlot, bool) {
	for _, slot := range target {
		if _, ok := FindOffset(cur, slot); !ok {
			return slot, true
		}
	}
	return StackSlot{}, false
}

// deepestMismatch finds the bottom-most index i where cur[i] disagrees with
// target[i] and cur[i] is not the (already-placed) top slot.
func deepestMismatch(cur Stack, target Stack, top StackSlot) (int, bool) {
	for i := 0; i < len(cur)-1; i++ {
		if !cur[i].Equal(target[i]) && !cur[i].Equal(top) {
			return i, true
		}
	}
	return 0, false
}

// countingCallbacks builds ShuffleCallbacks that tally the number of
// operations createStackLayout would emit, heavily penalising any
// swap/dup reaching past the VM's depth-16 limit. Used by the layout
// generator's cost estimator (combineStack) to score candidate layouts.
func countingCallbacks(ops *int) ShuffleCallbacks {
	penalize := func(depth int) {
		*ops++
		if depth > maxStackReach {
			*ops += stackTooDeepPenalty
		}
	}
	return ShuffleCallbacks{
		Swap: penalize,
		Dup:  penalize,
		Push: func(StackSlot) {},
		Pop:  func() {},
	}
}

const (
	maxStackReach       = 16
	stackTooDeepPenalty = 1000
)
