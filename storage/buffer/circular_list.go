// this code is adapted from storage/buffer/circular_list.go
// (https://github.com/brunocalza/go-bustub origin noted there)

package buffer

type node struct {
	key   FrameID
	value bool
	next  *node
	prev  *node
}

type circularList struct {
	head       *node
	tail       *node
	size       uint32
	capacity   uint32
	supportMap map[FrameID]*node
}

func newCircularList(maxSize uint32) *circularList {
	return &circularList{nil, nil, 0, maxSize, make(map[FrameID]*node)}
}

func (c *circularList) hasKey(key FrameID) bool {
	_, ok := c.supportMap[key]
	return ok
}

func (c *circularList) find(key FrameID) *node {
	return c.supportMap[key]
}

func (c *circularList) insert(key FrameID, value bool) {
	if c.size == c.capacity {
		panic("circularList: insert on a full list")
	}

	if n, ok := c.supportMap[key]; ok {
		n.value = value
		return
	}

	newNode := &node{key: key, value: value}
	if c.size == 0 {
		newNode.next = newNode
		newNode.prev = newNode
		c.head = newNode
		c.tail = newNode
		c.size++
		c.supportMap[key] = newNode
		return
	}

	newNode.next = c.head
	newNode.prev = c.tail
	c.tail.next = newNode
	if c.head == c.tail {
		c.head.next = newNode
	}
	c.tail = newNode
	c.head.prev = c.tail

	c.size++
	c.supportMap[key] = newNode
}

func (c *circularList) remove(key FrameID) {
	n, ok := c.supportMap[key]
	if !ok {
		return
	}

	if c.size == 1 {
		c.head = nil
		c.tail = nil
		c.size--
		delete(c.supportMap, key)
		return
	}

	if n == c.head {
		c.head = c.head.next
	}
	if n == c.tail {
		c.tail = c.tail.prev
	}
	n.next.prev = n.prev
	n.prev.next = n.next

	c.size--
	delete(c.supportMap, key)
}
