package banner

import (
	"fmt"
	"io"
	"strings"
)

var art = []string{
	"   __ _  __",
	"  / _(_)/ _| ___   __ _",
	" | |_| | |_ / _ \\ / _` |",
	" |  _| |  _| (_) | (_| |",
	" |_| |_|_|  \\___/ \\__, |",
	"                     |_|  v%s - FIFO queues over a shared store",
}

// Print writes the startup banner to w.
func Print(w io.Writer, version string) {
	fmt.Fprintf(w, "\n"+strings.Join(art, "\n")+"\n", version)
	fmt.Fprintln(w, "------------------------------------------------")
}
