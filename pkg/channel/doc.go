// Package channel identifies the channels a group requires its members to join.
//
// # Overview
//
// A channel is referenced either by its public handle ("@news") or by its
// numeric platform id (-1001234567890). Ref is a tagged variant holding exactly
// one of the two, so callers never have to sniff a string prefix to find out
// which form they were given.
//
// # Usage
//
//	ref, err := channel.Parse("@news")
//	if err != nil {
//	    return err
//	}
//	if handle, ok := ref.Handle(); ok {
//	    fmt.Println(ref.Link()) // https://t.me/news
//	}
//
// Parse accepts handles with or without the leading "@", t.me links and
// numeric ids. The canonical string form (String) round-trips through Parse
// and is what the storage backends persist.
package channel
