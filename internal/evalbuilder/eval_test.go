package evalbuilder

import (
	"testing"

	"github.com/matryer/is"
)

func TestGet(t *testing.T) {
	is := is.New(t)
	for _, name := range append(Names, "") {
		var builder, err = Get(name)
		is.NoErr(err)
		is.True(builder() != nil)
	}
	var _, err = Get("nnue")
	is.True(err != nil)
}
