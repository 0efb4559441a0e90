// this code is adapted from storage/buffer/clock_replacer.go
// (https://github.com/brunocalza/go-bustub origin noted there)

package buffer

// FrameID indexes a physical buffer-pool slot.
type FrameID uint32

// ClockReplacer is the clock-sweep eviction policy: every unpinned
// frame carries a reference bit; Victim sweeps clearing bits until it
// finds one already clear, evicting that frame.
type ClockReplacer struct {
	cList     *circularList
	clockHand **node
}

func NewClockReplacer(poolSize uint32) *ClockReplacer {
	cList := newCircularList(poolSize)
	return &ClockReplacer{cList, &cList.head}
}

// Victim removes and returns the frame the replacement policy selects,
// or nil if every frame is pinned (the replacer is empty).
func (c *ClockReplacer) Victim() *FrameID {
	if c.cList.size == 0 {
		return nil
	}

	currentNode := *c.clockHand
	for {
		if currentNode.value {
			currentNode.value = false
			c.clockHand = &currentNode.next
			currentNode = *c.clockHand
		} else {
			frameID := currentNode.key
			c.clockHand = &currentNode.next
			c.cList.remove(currentNode.key)
			return &frameID
		}
	}
}

// Unpin marks frame id as evictable.
func (c *ClockReplacer) Unpin(id FrameID) {
	if !c.cList.hasKey(id) {
		c.cList.insert(id, true)
		if c.cList.size == 1 {
			c.clockHand = &c.cList.head
		}
	}
}

// Pin marks frame id as no longer evictable.
func (c *ClockReplacer) Pin(id FrameID) {
	node := c.cList.find(id)
	if node == nil {
		return
	}
	if *c.clockHand == node {
		c.clockHand = &(*c.clockHand).next
	}
	c.cList.remove(id)
}

// Size returns the number of frames currently evictable.
func (c *ClockReplacer) Size() uint32 {
	return c.cList.size
}
