/*
Package stream turns raw terminal output into display chunks.

# Overview

A Reader consumes bytes in whatever fragments the transport delivers and
produces Chunks: runs of text carrying the active SGR attributes, and control
chunks for the escape sequences and C0 controls a renderer needs (cursor
movement, erase, modes, titles, bell, resize). Partial escape sequences and
partial UTF-8 runes at the end of a Feed wait for the next Feed.

	r := stream.NewReader()
	for _, c := range r.Feed(data) {
		switch c.Kind {
		case stream.KindText:
			render(c.Text, c.Attrs)
		case stream.KindControl:
			apply(c.Control, c.Params)
		}
	}
	tail := r.Flush() // end of stream

# Guarantees

  - No byte is dropped: concatenating Raw over every chunk reproduces the input.
  - Malformed or unsupported sequences come out as literal text and parsing
    resumes after them.
  - The same byte history always yields the same chunks. Feed may end a text
    run at a fragment boundary rather than hold output back, so chunk lists
    from different fragmentations are equal after Coalesce.
*/
package stream
