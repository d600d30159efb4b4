// Package checkpoint saves and restores optimizer state.
//
// A checkpoint file stores an optim.Snapshot: the rule name, the step
// counter and every state buffer as float32 data.
//
//	File layout:
//	  [0x00-0x03: Magic "BOPT"]
//	  [0x04-0x07: Version (uint32 LE)]
//	  [0x08-0x0B: Flags (uint32 LE)]
//	  [0x0C-0x0F: Reserved]
//	  [0x10-0x17: Header size (uint64 LE)]
//	  [0x18-0x1F: Data size (uint64 LE)]
//	  [0x20-0x3F: SHA-256 of the data section]
//	  [Header: JSON]
//	  [Padding to 64 bytes]
//	  [Data: little-endian float32, tensors in name order]
//
// Example usage:
//
//	snap, err := opt.StateDict()
//	if err != nil {
//	    return err
//	}
//	if err := checkpoint.Save("run.bopt", snap, checkpoint.SaveOptions{}); err != nil {
//	    return err
//	}
//
//	snap, header, err := checkpoint.Load("run.bopt")
//	if err != nil {
//	    return err
//	}
//	err = opt.LoadStateDict(snap)
package checkpoint
