package customfields

import (
	"database/sql/driver"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeFromStr(t *testing.T) {
	var v Time
	require.Nil(t, v.FromStr("5ms"))
	require.Equal(t, Time(5_000_000), v)
	require.Nil(t, v.FromStr("2s"))
	require.Equal(t, Time(2_000_000_000), v)
	require.Equal(t, "2s", v.String())

	require.NotNil(t, v.FromStr("5ts"))
	require.NotNil(t, v.FromStr("aboba"))
	require.NotNil(t, v.FromStr("5.5s"))
}

func TestMemoryFromStr(t *testing.T) {
	var v Memory
	require.Nil(t, v.FromStr("256m"))
	require.Equal(t, Memory(256*1024*1024), v)
	require.Equal(t, "256m", v.String())

	require.NotNil(t, v.FromStr("5t"))
}

// Time and Memory are stored behind pointers in result rows, where nil
// means "not measured". The sql package only short-circuits a nil pointer
// to NULL when Value is declared on the value receiver, so these must not
// panic.
func TestNilTimeAndMemoryValue(t *testing.T) {
	var tm *Time
	v, err := driver.DefaultParameterConverter.ConvertValue(tm)
	require.Nil(t, err)
	require.Nil(t, v)

	var mem *Memory
	v, err = driver.DefaultParameterConverter.ConvertValue(mem)
	require.Nil(t, err)
	require.Nil(t, v)

	set := Time(5)
	v, err = driver.DefaultParameterConverter.ConvertValue(&set)
	require.Nil(t, err)
	require.Equal(t, int64(5), v)
}

func TestTimeJSONRoundTrip(t *testing.T) {
	v := Time(1_500_000)
	data, err := json.Marshal(v)
	require.Nil(t, err)

	var back Time
	require.Nil(t, json.Unmarshal(data, &back))
	require.Equal(t, v, back)
}
