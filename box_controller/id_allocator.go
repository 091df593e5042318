package boxcontroller

// GetNextID hands out a unique box id.
func (bc *BoxController) GetNextID() uint64 {
	bc.idMu.Lock()
	id := bc.maxID
	bc.maxID++
	bc.idMu.Unlock()
	return id
}

// ClaimIDRange reserves n consecutive ids and returns the first one. A split
// uses it to number all of its children with a single lock acquisition.
func (bc *BoxController) ClaimIDRange(n uint64) uint64 {
	bc.idMu.Lock()
	first := bc.maxID
	bc.maxID += n
	bc.idMu.Unlock()
	return first
}

// MaxID is the exclusive upper bound of the ids handed out so far.
func (bc *BoxController) MaxID() uint64 {
	bc.idMu.Lock()
	defer bc.idMu.Unlock()
	return bc.maxID
}

// SetMaxID restores the id counter when loading a saved controller. It must
// not race with GetNextID or ClaimIDRange.
func (bc *BoxController) SetMaxID(id uint64) {
	bc.idMu.Lock()
	bc.maxID = id
	bc.idMu.Unlock()
}
