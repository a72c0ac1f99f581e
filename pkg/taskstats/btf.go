package taskstats

import (
	"fmt"

	"github.com/cilium/ebpf/btf"
)

// LayoutMismatch is a table field the kernel describes differently.
type LayoutMismatch struct {
	Field        string
	TableOffset  int
	TableSize    int
	KernelOffset int
	KernelSize   int
	// Missing is set when the kernel's struct has no such member; older
	// kernels legitimately lack the newer fields.
	Missing bool
}

func (m LayoutMismatch) String() string {
	if m.Missing {
		return fmt.Sprintf("%s: not present in kernel (table offset %d)", m.Field, m.TableOffset)
	}
	return fmt.Sprintf("%s: table offset %d size %d, kernel offset %d size %d",
		m.Field, m.TableOffset, m.TableSize, m.KernelOffset, m.KernelSize)
}

// LayoutReport compares the offset table with a BTF description of
// struct taskstats.
type LayoutReport struct {
	KernelSize int
	Mismatches []LayoutMismatch
	// Unknown lists kernel members the table does not describe.
	Unknown []string
}

// OK reports whether every table field the kernel carries matches.
func (r LayoutReport) OK() bool {
	for _, m := range r.Mismatches {
		if !m.Missing {
			return false
		}
	}
	return true
}

// VerifyKernelLayout checks the offset table against the running kernel's
// BTF. It needs CONFIG_DEBUG_INFO_BTF.
func VerifyKernelLayout() (LayoutReport, error) {
	spec, err := btf.LoadKernelSpec()
	if err != nil {
		return LayoutReport{}, fmt.Errorf("taskstats: load kernel BTF: %w", err)
	}
	var s *btf.Struct
	if err := spec.TypeByName("taskstats", &s); err != nil {
		return LayoutReport{}, fmt.Errorf("taskstats: find struct taskstats: %w", err)
	}
	return compareLayout(s)
}

func compareLayout(s *btf.Struct) (LayoutReport, error) {
	report := LayoutReport{KernelSize: int(s.Size)}

	kernel := make(map[string]btf.Member, len(s.Members))
	for _, m := range s.Members {
		kernel[m.Name] = m
		if _, ok := fieldByName[m.Name]; !ok && m.Name != "" && m.Name != "ac_pad" {
			report.Unknown = append(report.Unknown, m.Name)
		}
	}

	for _, f := range fields {
		m, ok := kernel[f.Name]
		if !ok {
			report.Mismatches = append(report.Mismatches, LayoutMismatch{
				Field: f.Name, TableOffset: f.Offset, TableSize: f.Size, Missing: true,
			})
			continue
		}
		size, err := btf.Sizeof(m.Type)
		if err != nil {
			return LayoutReport{}, fmt.Errorf("taskstats: size of %s: %w", f.Name, err)
		}
		offset := int(m.Offset.Bytes())
		if offset != f.Offset || size != f.Size {
			report.Mismatches = append(report.Mismatches, LayoutMismatch{
				Field:        f.Name,
				TableOffset:  f.Offset,
				TableSize:    f.Size,
				KernelOffset: offset,
				KernelSize:   size,
			})
		}
	}
	return report, nil
}
