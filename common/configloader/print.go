// common/configloader/print.go
package configloader

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrintConfig выводит конфиг в читаемом виде (удобно в DevMode).
func PrintConfig(w io.Writer, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "configloader: print config: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Loaded configuration:\n%s\n", b)
}
