package simdev

import (
	"container/list"
	"sync"

	"github.com/sarchlab/gpucs/device"
)

// A Page is an entry in the page table. It maps one GPU page onto a page of a
// buffer object.
type Page struct {
	VAddr  uint64
	BO     device.BufferHandle
	Offset uint64
	Flags  device.MappingFlags
}

// A PageTable holds the pages of the GPU address space.
type PageTable interface {
	Insert(page Page)
	Remove(vAddr uint64)
	Find(vAddr uint64) (Page, bool)
	Len() int
}

// NewPageTable creates a new PageTable.
func NewPageTable(log2PageSize uint64) PageTable {
	return &pageTableImpl{
		log2PageSize: log2PageSize,
		entries:      list.New(),
		entriesTable: make(map[uint64]*list.Element),
	}
}

type pageTableImpl struct {
	sync.Mutex
	log2PageSize uint64
	entries      *list.List
	entriesTable map[uint64]*list.Element
}

func (pt *pageTableImpl) alignToPage(addr uint64) uint64 {
	return (addr >> pt.log2PageSize) << pt.log2PageSize
}

// Insert puts a new page into the PageTable.
func (pt *pageTableImpl) Insert(page Page) {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustNotExist(page.VAddr)

	elem := pt.entries.PushBack(page)
	pt.entriesTable[page.VAddr] = elem
}

// Remove removes the page that starts at vAddr.
func (pt *pageTableImpl) Remove(vAddr uint64) {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustExist(vAddr)

	elem := pt.entriesTable[vAddr]
	pt.entries.Remove(elem)
	delete(pt.entriesTable, vAddr)
}

// Find returns the page that contains the given address.
func (pt *pageTableImpl) Find(vAddr uint64) (Page, bool) {
	pt.Lock()
	defer pt.Unlock()

	elem, found := pt.entriesTable[pt.alignToPage(vAddr)]
	if found {
		return elem.Value.(Page), true
	}

	return Page{}, false
}

// Len returns the number of mapped pages.
func (pt *pageTableImpl) Len() int {
	pt.Lock()
	defer pt.Unlock()

	return pt.entries.Len()
}

func (pt *pageTableImpl) pageMustExist(vAddr uint64) {
	_, found := pt.entriesTable[vAddr]
	if !found {
		panic("page does not exist")
	}
}

func (pt *pageTableImpl) pageMustNotExist(vAddr uint64) {
	_, found := pt.entriesTable[vAddr]
	if found {
		panic("page exist")
	}
}
