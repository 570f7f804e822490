package codegen

import (
	"encoding/json"
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/lqr"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// jsonMatrix is a matrix in the runtime's flatbuffer JSON layout.
type jsonMatrix struct {
	Rows         int       `json:"rows"`
	Cols         int       `json:"cols"`
	StorageOrder string    `json:"storage_order"`
	Data         []float64 `json:"data"`
}

type jsonPole struct {
	Re float64 `json:"re"`
	Im float64 `json:"im"`
}

type jsonPlant struct {
	A                 jsonMatrix `json:"a"`
	B                 jsonMatrix `json:"b"`
	C                 jsonMatrix `json:"c"`
	D                 jsonMatrix `json:"d"`
	UMax              jsonMatrix `json:"u_max"`
	UMin              jsonMatrix `json:"u_min"`
	ULimitCoefficient jsonMatrix `json:"u_limit_coefficient"`
	ULimitConstant    jsonMatrix `json:"u_limit_constant"`
	Dt                int64      `json:"dt"`
	DelayedU          int        `json:"delayed_u"`
	WrapPoint         jsonMatrix `json:"wrap_point"`
}

type jsonController struct {
	K     jsonMatrix `json:"k"`
	Kff   jsonMatrix `json:"kff"`
	Poles []jsonPole `json:"poles"`
}

type jsonObserver struct {
	KalmanGain jsonMatrix `json:"kalman_gain"`
	Q          jsonMatrix `json:"q"`
	R          jsonMatrix `json:"r"`
	DelayedU   int        `json:"delayed_u"`
	Poles      []jsonPole `json:"poles"`
}

type jsonLoop struct {
	Name       string         `json:"name"`
	Plant      jsonPlant      `json:"plant"`
	Controller jsonController `json:"controller"`
	Observer   jsonObserver   `json:"observer"`
}

// toJSON converts row-major matrix data to the column-major JSON layout.
func (m matrixData) toJSON() jsonMatrix {
	data := make([]float64, 0, len(m.Values))
	for j := 0; j < m.Cols; j++ {
		for i := 0; i < m.Rows; i++ {
			data = append(data, m.Values[i*m.Cols+j])
		}
	}

	return jsonMatrix{Rows: m.Rows, Cols: m.Cols, StorageOrder: "ColMajor", Data: data}
}

func poles(m mat.Matrix) ([]jsonPole, error) {
	vals, err := matrix.Eigenvalues(m)
	if err != nil {
		return nil, err
	}

	out := make([]jsonPole, len(vals))
	for i, v := range vals {
		out[i] = jsonPole{Re: real(v), Im: imag(v)}
	}

	return out, nil
}

// LoopKey returns the sidecar key the bundle loops are stored under, e.g. drivetrain_loop.
func (w *Writer) LoopKey() string {
	return snake(w.Name) + "_loop"
}

// JSON renders the bundle sidecar: the loops under LoopKey and every constant
// with a JSON name, scaled and optionally truncated to an integer.
func (w *Writer) JSON() ([]byte, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	loops := make([]jsonLoop, 0, len(w.Loops))
	for _, l := range w.Loops {
		d := w.loopData(l)

		cp, err := poles(lqr.ClosedLoop(l.StateMatrix(), l.StateCtlMatrix(), l.Gain()))
		if err != nil {
			return nil, errors.Wrapf(control.ErrSynthesis, "loop %s: controller poles: %v", l.Name(), err)
		}

		op, err := poles(lqr.ClosedLoop(l.StateMatrix(), l.PredictorGain(), l.OutputMatrix()))
		if err != nil {
			return nil, errors.Wrapf(control.ErrSynthesis, "loop %s: observer poles: %v", l.Name(), err)
		}

		loops = append(loops, jsonLoop{
			Name: d.Name,
			Plant: jsonPlant{
				A:                 d.A.toJSON(),
				B:                 d.B.toJSON(),
				C:                 d.C.toJSON(),
				D:                 d.D.toJSON(),
				UMax:              d.UMax.toJSON(),
				UMin:              d.UMin.toJSON(),
				ULimitCoefficient: d.ULimitCoef.toJSON(),
				ULimitConstant:    d.ULimitCst.toJSON(),
				Dt:                d.DtNs,
				DelayedU:          d.DelayedU,
				WrapPoint:         d.WrapPoint.toJSON(),
			},
			Controller: jsonController{
				K:     d.K.toJSON(),
				Kff:   d.Kff.toJSON(),
				Poles: cp,
			},
			Observer: jsonObserver{
				KalmanGain: d.KalmanGain.toJSON(),
				Q:          d.Q.toJSON(),
				R:          d.R.toJSON(),
				DelayedU:   d.DelayedU,
				Poles:      op,
			},
		})
	}

	doc := map[string]interface{}{w.LoopKey(): loops}
	for _, c := range w.Constants {
		if c.JSONName == "" {
			continue
		}
		if _, ok := doc[c.JSONName]; ok {
			return nil, errors.Wrapf(control.ErrInterface, "bundle %s: duplicate JSON key: %s", w.Name, c.JSONName)
		}

		scale := c.JSONScale
		if scale == 0 {
			scale = 1
		}

		if c.JSONInt {
			doc[c.JSONName] = int64(math.Round(c.Value * scale))
			continue
		}
		doc[c.JSONName] = c.Value * scale
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(control.ErrInterface, "bundle %s: %v", w.Name, err)
	}

	return append(data, '\n'), nil
}
