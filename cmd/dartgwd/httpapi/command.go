package httpapi

import (
	"fmt"

	"github.com/ibramn/pump-protocol/dart"
)

// commandFromRequest maps the send_command request's {type, data} pair onto
// a dart.Command. Field names in data mirror the CDn transaction layouts.
func commandFromRequest(req sendCommandRequest) (dart.Command, error) {
	data := req.Command.Data

	switch req.Command.Type {
	case "CD1":
		cmd, err := asByte(data, "command")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD1, Cmd: cmd}, nil

	case "CD2":
		nozzles, err := asByteSlice(data, "nozzles")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD2, Nozzles: nozzles}, nil

	case "CD3":
		v, err := asFloat(data, "volume")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD3, Volume: v}, nil

	case "CD4":
		a, err := asFloat(data, "amount")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD4, Amount: a}, nil

	case "CD5":
		prices, err := asFloatSlice(data, "prices")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD5, Prices: prices}, nil

	case "CD7":
		fn, err := asByte(data, "function")
		if err != nil {
			return dart.Command{}, err
		}
		out, err := asByte(data, "output_cmd")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD7, Function: fn, OutputCmd: out}, nil

	case "CD9":
		dpVol, err := asByte(data, "dp_vol")
		if err != nil {
			return dart.Command{}, err
		}
		dpAmo, err := asByte(data, "dp_amo")
		if err != nil {
			return dart.Command{}, err
		}
		dpUnp, err := asByte(data, "dp_unp")
		if err != nil {
			return dart.Command{}, err
		}
		maxAmount, err := asFloat(data, "max_amount")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD9, Params: dart.PumpParams{
			DpVol: dpVol, DpAmo: dpAmo, DpUnp: dpUnp, MaxAmount: maxAmount,
		}}, nil

	case "CD13":
		ft, err := asByte(data, "filling_type")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD13, FillingType: ft}, nil

	case "CD14":
		n, err := asByte(data, "nozzle")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD14, Nozzle: n}, nil

	case "CD15":
		n, err := asByte(data, "nozzle")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD15, Nozzle: n}, nil

	case "CD101":
		c, err := asByte(data, "counter")
		if err != nil {
			return dart.Command{}, err
		}
		return dart.Command{Kind: dart.CD101, Counter: c}, nil

	default:
		return dart.Command{}, fmt.Errorf("%w: unknown command type %q", dart.ErrInvalidArgument, req.Command.Type)
	}
}

func asFloat(data map[string]any, key string) (float64, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("%w: command.data.%s is required", dart.ErrInvalidArgument, key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: command.data.%s must be a number", dart.ErrInvalidArgument, key)
	}
	return f, nil
}

func asByte(data map[string]any, key string) (byte, error) {
	f, err := asFloat(data, key)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 255 {
		return 0, fmt.Errorf("%w: command.data.%s out of byte range", dart.ErrInvalidArgument, key)
	}
	return byte(f), nil
}

func asFloatSlice(data map[string]any, key string) ([]float64, error) {
	v, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("%w: command.data.%s is required", dart.ErrInvalidArgument, key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: command.data.%s must be an array", dart.ErrInvalidArgument, key)
	}
	out := make([]float64, len(raw))
	for i, e := range raw {
		f, ok := e.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: command.data.%s[%d] must be a number", dart.ErrInvalidArgument, key, i)
		}
		out[i] = f
	}
	return out, nil
}

func asByteSlice(data map[string]any, key string) ([]byte, error) {
	floats, err := asFloatSlice(data, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(floats))
	for i, f := range floats {
		if f < 0 || f > 255 {
			return nil, fmt.Errorf("%w: command.data.%s[%d] out of byte range", dart.ErrInvalidArgument, key, i)
		}
		out[i] = byte(f)
	}
	return out, nil
}
