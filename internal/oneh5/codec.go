// Package oneh5 reads and writes the consolidated ("All-in-One") HDF5
// archive and the per-baseline correlator files it is assembled from.
//
// The archive layout matches what h5py produces for numpy arrays: complex
// data is stored as a compound of two float64 members named "r" and "i".
package oneh5

import (
	"errors"
	"fmt"
	"log"
	"unsafe"

	"github.com/saviobatista/ytla-corr/internal/vis"
	"gonum.org/v1/hdf5"
)

// Dataset names of the consolidated archive
const (
	DatasetTimestamp = "timestamp"
	DatasetAuto      = "auto"
	DatasetCross     = "cross"
	DatasetPassband  = "passband"
	DatasetGain      = "gain"

	attrMissing = "missing"
)

var (
	// ErrMissingTimestamps is returned when the timestamp series of a raw
	// observation cannot be read
	ErrMissingTimestamps = errors.New("oneh5: timestamp series unavailable")

	// ErrMissingSlice is returned in strict mode when a per-baseline file is absent
	ErrMissingSlice = errors.New("oneh5: per-baseline file missing")

	// ErrUnsupportedType is returned for datasets whose element type cannot be decoded
	ErrUnsupportedType = errors.New("oneh5: unsupported element type")
)

// complexPair is the memory layout of complex128 and the h5py compound type
type complexPair struct {
	R float64 `hdf5:"r"`
	I float64 `hdf5:"i"`
}

func asPairs(c []complex128) []complexPair {
	if len(c) == 0 {
		return nil
	}
	return unsafe.Slice((*complexPair)(unsafe.Pointer(&c[0])), len(c))
}

// Dataset is an auxiliary array appended to an existing archive. Exactly one
// of Real and Complex is set; Attrs values may be int, int64, float64, bool or
// string.
type Dataset struct {
	Dims    []uint
	Real    []float64
	Complex []complex128
	Attrs   map[string]interface{}
}

// Save writes archive a to a new file at path, replacing any existing file
func Save(path string, a *vis.Archive) error {
	if err := a.Validate(); err != nil {
		return err
	}

	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	root, err := f.OpenGroup("/")
	if err != nil {
		return fmt.Errorf("failed to open root group: %w", err)
	}
	defer root.Close()

	dims := map[string]int{
		"na":    a.Antennas,
		"nb":    a.Baselines,
		"nsb":   vis.Sidebands,
		"nch":   a.Channels,
		"ndata": a.Samples,
	}
	for name, v := range dims {
		if err := writeScalarAttr(root, name, v); err != nil {
			return err
		}
	}

	log.Printf("...  %s", DatasetTimestamp)
	if err := writeFloat(f, DatasetTimestamp, []uint{uint(a.Samples)}, a.Timestamps, nil); err != nil {
		return err
	}

	log.Printf("...  %s-corr (real)", DatasetAuto)
	autoDims := []uint{vis.Sidebands, uint(a.Antennas), uint(a.Channels), uint(a.Samples)}
	if err := writeFloat(f, DatasetAuto, autoDims, a.Auto, boolsToInt32(a.MissingAuto)); err != nil {
		return err
	}

	log.Printf("...  %s-corr (complex)", DatasetCross)
	crossDims := []uint{vis.Sidebands, uint(a.Baselines), uint(a.Channels), uint(a.Samples)}
	if err := writeComplex(f, DatasetCross, crossDims, a.Cross, boolsToInt32(a.MissingCross)); err != nil {
		return err
	}

	return nil
}

// Load reads a consolidated archive. Shapes are taken from the datasets; the
// dimension attributes of the file are informational only.
func Load(path string) (*vis.Archive, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	times, tdims, err := readFloat(f, DatasetTimestamp)
	if err != nil {
		return nil, err
	}
	if len(tdims) != 1 {
		return nil, fmt.Errorf("%w: timestamp has rank %d", vis.ErrShapeMismatch, len(tdims))
	}

	auto, adims, err := readFloat(f, DatasetAuto)
	if err != nil {
		return nil, err
	}
	cross, cdims, err := readComplex(f, DatasetCross)
	if err != nil {
		return nil, err
	}
	if len(adims) != 4 || len(cdims) != 4 {
		return nil, fmt.Errorf("%w: auto rank %d, cross rank %d", vis.ErrShapeMismatch, len(adims), len(cdims))
	}

	a := &vis.Archive{
		Antennas:   int(adims[1]),
		Baselines:  int(cdims[1]),
		Channels:   int(adims[2]),
		Samples:    int(tdims[0]),
		Timestamps: times,
		Auto:       auto,
		Cross:      cross,
	}
	a.MissingAuto = readMissing(f, DatasetAuto, vis.Sidebands*a.Antennas)
	a.MissingCross = readMissing(f, DatasetCross, vis.Sidebands*a.Baselines)

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// AppendDataset adds a named dataset to an existing archive without touching
// the datasets already present
func AppendDataset(path, name string, ds Dataset) error {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDWR)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	log.Printf("...  %s", name)

	var dset *hdf5.Dataset
	switch {
	case ds.Complex != nil:
		dset, err = createComplex(f, name, ds.Dims, ds.Complex)
	case ds.Real != nil:
		dset, err = createFloat(f, name, ds.Dims, ds.Real)
	default:
		return fmt.Errorf("dataset %s has no data", name)
	}
	if err != nil {
		return err
	}
	defer dset.Close()

	for key, v := range ds.Attrs {
		if err := writeScalarAttr(dset, key, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadPassband reads the passband and gain datasets appended to a
// calibrated archive
func ReadPassband(path string) (*vis.Passband, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	values, pdims, err := readComplex(f, DatasetPassband)
	if err != nil {
		return nil, err
	}
	norm, gdims, err := readFloat(f, DatasetGain)
	if err != nil {
		return nil, err
	}
	if len(pdims) != 3 || len(gdims) != 2 || pdims[1] != gdims[1] {
		return nil, fmt.Errorf("%w: passband %v, gain %v", vis.ErrShapeMismatch, pdims, gdims)
	}

	pb := &vis.Passband{
		Baselines: int(pdims[1]),
		Channels:  int(pdims[2]),
		ChMax:     int(pdims[2]),
		Values:    values,
		Norm:      norm,
	}

	dset, err := f.OpenDataset(DatasetGain)
	if err == nil {
		defer dset.Close()
		if v, err := readInt64Attr(dset, "chmin"); err == nil {
			pb.ChMin = int(v)
		}
		if v, err := readInt64Attr(dset, "chmax"); err == nil {
			pb.ChMax = int(v)
		}
	}
	return pb, nil
}

// attributer is implemented by hdf5 groups and datasets
type attributer interface {
	CreateAttribute(name string, dtype *hdf5.Datatype, dspace *hdf5.Dataspace) (*hdf5.Attribute, error)
	OpenAttribute(name string) (*hdf5.Attribute, error)
}

func writeScalarAttr(obj attributer, name string, v interface{}) error {
	space, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return fmt.Errorf("failed to create dataspace for attribute %s: %w", name, err)
	}
	defer space.Close()

	var (
		dtype *hdf5.Datatype
		data  interface{}
	)
	switch x := v.(type) {
	case int:
		i := int64(x)
		dtype, data = hdf5.T_NATIVE_INT64, &i
	case int64:
		dtype, data = hdf5.T_NATIVE_INT64, &x
	case float64:
		dtype, data = hdf5.T_NATIVE_DOUBLE, &x
	case bool:
		var i int32
		if x {
			i = 1
		}
		dtype, data = hdf5.T_NATIVE_INT32, &i
	case string:
		dtype, data = hdf5.T_GO_STRING, &x
	default:
		return fmt.Errorf("attribute %s: %w %T", name, ErrUnsupportedType, v)
	}

	attr, err := obj.CreateAttribute(name, dtype, space)
	if err != nil {
		return fmt.Errorf("failed to create attribute %s: %w", name, err)
	}
	defer attr.Close()

	if err := attr.Write(data, dtype); err != nil {
		return fmt.Errorf("failed to write attribute %s: %w", name, err)
	}
	return nil
}

func readInt64Attr(obj attributer, name string) (int64, error) {
	attr, err := obj.OpenAttribute(name)
	if err != nil {
		return 0, err
	}
	defer attr.Close()

	var v int64
	if err := attr.Read(&v, hdf5.T_NATIVE_INT64); err != nil {
		return 0, err
	}
	return v, nil
}

func createFloat(f *hdf5.File, name string, dims []uint, data []float64) (*hdf5.Dataset, error) {
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataspace for %s: %w", name, err)
	}
	defer space.Close()

	dset, err := f.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	if err := dset.Write(&data); err != nil {
		dset.Close()
		return nil, fmt.Errorf("failed to write dataset %s: %w", name, err)
	}
	return dset, nil
}

func createComplex(f *hdf5.File, name string, dims []uint, data []complex128) (*hdf5.Dataset, error) {
	dtype, err := hdf5.NewDatatypeFromValue(complexPair{})
	if err != nil {
		return nil, fmt.Errorf("failed to build complex datatype: %w", err)
	}
	defer dtype.Close()

	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataspace for %s: %w", name, err)
	}
	defer space.Close()

	dset, err := f.CreateDataset(name, dtype, space)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	pairs := asPairs(data)
	if err := dset.Write(&pairs); err != nil {
		dset.Close()
		return nil, fmt.Errorf("failed to write dataset %s: %w", name, err)
	}
	return dset, nil
}

func writeFloat(f *hdf5.File, name string, dims []uint, data []float64, missing []int32) error {
	dset, err := createFloat(f, name, dims, data)
	if err != nil {
		return err
	}
	defer dset.Close()
	return writeMissing(dset, missing)
}

func writeComplex(f *hdf5.File, name string, dims []uint, data []complex128, missing []int32) error {
	dset, err := createComplex(f, name, dims, data)
	if err != nil {
		return err
	}
	defer dset.Close()
	return writeMissing(dset, missing)
}

// writeMissing stores the per-slice missing bitmap as a 1-D int32 attribute
func writeMissing(dset *hdf5.Dataset, missing []int32) error {
	if len(missing) == 0 {
		return nil
	}
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(missing))}, nil)
	if err != nil {
		return fmt.Errorf("failed to create dataspace for %s: %w", attrMissing, err)
	}
	defer space.Close()

	attr, err := dset.CreateAttribute(attrMissing, hdf5.T_NATIVE_INT32, space)
	if err != nil {
		return fmt.Errorf("failed to create attribute %s: %w", attrMissing, err)
	}
	defer attr.Close()

	return attr.Write(&missing, hdf5.T_NATIVE_INT32)
}

// readMissing returns the missing bitmap of a dataset, all false when the
// file predates the attribute
func readMissing(f *hdf5.File, name string, n int) []bool {
	out := make([]bool, n)

	dset, err := f.OpenDataset(name)
	if err != nil {
		return out
	}
	defer dset.Close()

	attr, err := dset.OpenAttribute(attrMissing)
	if err != nil {
		return out
	}
	defer attr.Close()

	space := attr.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil || len(dims) != 1 || int(dims[0]) != n {
		log.Printf("Warning: ignoring malformed %s attribute on %s", attrMissing, name)
		return out
	}

	flags := make([]int32, n)
	if err := attr.Read(&flags, hdf5.T_NATIVE_INT32); err != nil {
		log.Printf("Warning: failed to read %s attribute on %s: %v", attrMissing, name, err)
		return out
	}
	for i, v := range flags {
		out[i] = v != 0
	}
	return out
}

type datasetOpener interface {
	OpenDataset(name string) (*hdf5.Dataset, error)
}

// readFloat reads a real dataset of any common numeric element type into float64
func readFloat(loc datasetOpener, name string) ([]float64, []uint, error) {
	dset, err := loc.OpenDataset(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset %s: %w", name, err)
	}
	defer dset.Close()

	dims, n, err := extent(dset)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, err)
	}

	dtype, err := dset.Datatype()
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	defer dtype.Close()

	out := make([]float64, n)
	switch {
	case dtype.Class() == hdf5.T_FLOAT && dtype.Size() == 8:
		err = dset.Read(&out)
	case dtype.Class() == hdf5.T_FLOAT && dtype.Size() == 4:
		buf := make([]float32, n)
		if err = dset.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case dtype.Class() == hdf5.T_INTEGER && dtype.Size() == 8:
		buf := make([]int64, n)
		if err = dset.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case dtype.Class() == hdf5.T_INTEGER && dtype.Size() == 4:
		buf := make([]int32, n)
		if err = dset.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	default:
		return nil, nil, fmt.Errorf("dataset %s: %w", name, ErrUnsupportedType)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	return out, dims, nil
}

// readComplex reads an h5py-style complex128 dataset
func readComplex(loc datasetOpener, name string) ([]complex128, []uint, error) {
	dset, err := loc.OpenDataset(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset %s: %w", name, err)
	}
	defer dset.Close()

	dims, n, err := extent(dset)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, err)
	}

	dtype, err := dset.Datatype()
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	defer dtype.Close()
	if dtype.Class() != hdf5.T_COMPOUND || dtype.Size() != 16 {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, ErrUnsupportedType)
	}

	out := make([]complex128, n)
	pairs := asPairs(out)
	if err := dset.Read(&pairs); err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	return out, dims, nil
}

func extent(dset *hdf5.Dataset) ([]uint, int, error) {
	space := dset.Space()
	defer space.Close()

	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, 0, err
	}
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	return dims, n, nil
}

func boolsToInt32(b []bool) []int32 {
	out := make([]int32, len(b))
	for i, v := range b {
		if v {
			out[i] = 1
		}
	}
	return out
}
