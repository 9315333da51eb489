package tsugite

import (
	"fmt"
	"go/token"
	"go/types"
	"log/slog"
	"strings"

	"golang.org/x/tools/go/packages"
)

// GoOracle answers type-compatibility questions from the host Go
// packages themselves, loaded through go/packages. It is the
// language-specific half of the oracle; the engine never touches
// go/types directly.
type GoOracle struct {
	fset *token.FileSet
	pkgs map[string]*packages.Package
}

// NewGoOracle loads the given package patterns and indexes them by
// import path.
func NewGoOracle(patterns ...string) (*GoOracle, error) {
	o := &GoOracle{
		fset: token.NewFileSet(),
		pkgs: make(map[string]*packages.Package),
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedTypes | packages.NeedTypesSizes |
			packages.NeedSyntax | packages.NeedTypesInfo,
		Fset: o.fset,
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	errorCount := packages.PrintErrors(pkgs)
	if errorCount > 0 && len(pkgs) == 0 {
		return nil, fmt.Errorf("package loading errors occurred and no packages loaded")
	}

	var index func(pkg *packages.Package)
	index = func(pkg *packages.Package) {
		if pkg == nil || pkg.Types == nil {
			return
		}
		if _, ok := o.pkgs[pkg.PkgPath]; ok {
			return
		}
		o.pkgs[pkg.PkgPath] = pkg
		for _, imp := range pkg.Imports {
			index(imp)
		}
	}
	for _, pkg := range pkgs {
		index(pkg)
	}

	slog.Debug("go oracle loaded", "packages", len(o.pkgs))
	return o, nil
}

func (o *GoOracle) AssignableTo(impl, contract TypeRef) bool {
	implType, ok := o.lookup(impl)
	if !ok {
		return false
	}
	contractType, ok := o.lookup(contract)
	if !ok {
		return false
	}

	if types.AssignableTo(implType, contractType) {
		return true
	}
	if iface, ok := contractType.Underlying().(*types.Interface); ok {
		return types.Implements(implType, iface)
	}
	return false
}

// ConcreteShape derives an auto-binding constructor shape for a concrete
// type: an exported NewX function in the defining package wins, falling
// back to the exported fields of a struct type.
func (o *GoOracle) ConcreteShape(t TypeRef) (*ImplSpec, bool) {
	named := t
	if t.Kind == KindPointer {
		named = *t.Elem
	}
	pkgPath, typeName, ok := splitQualified(named.Name)
	if !ok {
		return nil, false
	}
	pkg, ok := o.pkgs[pkgPath]
	if !ok || pkg.Types == nil {
		return nil, false
	}
	scope := pkg.Types.Scope()

	if fn, ok := scope.Lookup("New" + typeName).(*types.Func); ok {
		sig, ok := fn.Type().(*types.Signature)
		if ok && sig.Results().Len() >= 1 {
			spec := &ImplSpec{Type: t}
			for i := 0; i < sig.Params().Len(); i++ {
				param := sig.Params().At(i)
				ref, ok := o.typeRefOf(param.Type())
				if !ok {
					return nil, false
				}
				spec.Params = append(spec.Params, InjectionSite{
					Kind:     InjectCtorParam,
					Name:     param.Name(),
					Contract: Contract{Type: ref},
					Ordinal:  i,
				})
			}
			return spec, true
		}
	}

	obj, ok := scope.Lookup(typeName).(*types.TypeName)
	if !ok {
		return nil, false
	}
	st, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		return nil, false
	}

	spec := &ImplSpec{Type: t}
	ordinal := 0
	for i := 0; i < st.NumFields(); i++ {
		field := st.Field(i)
		if !field.Exported() {
			continue
		}
		ref, ok := o.typeRefOf(field.Type())
		if !ok {
			return nil, false
		}
		spec.Members = append(spec.Members, InjectionSite{
			Kind:     InjectField,
			Name:     field.Name(),
			Contract: Contract{Type: ref},
			Ordinal:  ordinal,
		})
		ordinal++
	}
	return spec, true
}

// lookup resolves a TypeRef against the loaded packages.
func (o *GoOracle) lookup(t TypeRef) (types.Type, bool) {
	switch t.Kind {
	case KindPointer:
		elem, ok := o.lookup(*t.Elem)
		if !ok {
			return nil, false
		}
		return types.NewPointer(elem), true
	case KindSlice:
		elem, ok := o.lookup(*t.Elem)
		if !ok {
			return nil, false
		}
		return types.NewSlice(elem), true
	case KindArray:
		elem, ok := o.lookup(*t.Elem)
		if !ok {
			return nil, false
		}
		return types.NewArray(elem, int64(t.Len)), true
	case KindChan:
		elem, ok := o.lookup(*t.Elem)
		if !ok {
			return nil, false
		}
		return types.NewChan(types.RecvOnly, elem), true
	case KindNamed, "":
		if basic := types.Universe.Lookup(t.Name); basic != nil {
			if tn, ok := basic.(*types.TypeName); ok {
				return tn.Type(), true
			}
		}
		pkgPath, typeName, ok := splitQualified(t.Name)
		if !ok {
			return nil, false
		}
		pkg, ok := o.pkgs[pkgPath]
		if !ok || pkg.Types == nil {
			return nil, false
		}
		obj, ok := pkg.Types.Scope().Lookup(typeName).(*types.TypeName)
		if !ok {
			return nil, false
		}
		return obj.Type(), true
	default:
		return nil, false
	}
}

// typeRefOf maps a loaded go/types type back into the engine's symbolic
// form.
func (o *GoOracle) typeRefOf(t types.Type) (TypeRef, bool) {
	switch typ := t.(type) {
	case *types.Basic:
		return TypeRef{Kind: KindNamed, Name: typ.Name()}, true
	case *types.Pointer:
		elem, ok := o.typeRefOf(typ.Elem())
		if !ok {
			return TypeRef{}, false
		}
		return TypeRef{Kind: KindPointer, Elem: &elem}, true
	case *types.Slice:
		elem, ok := o.typeRefOf(typ.Elem())
		if !ok {
			return TypeRef{}, false
		}
		return TypeRef{Kind: KindSlice, Elem: &elem}, true
	case *types.Array:
		elem, ok := o.typeRefOf(typ.Elem())
		if !ok {
			return TypeRef{}, false
		}
		return TypeRef{Kind: KindArray, Len: int(typ.Len()), Elem: &elem}, true
	case *types.Chan:
		elem, ok := o.typeRefOf(typ.Elem())
		if !ok {
			return TypeRef{}, false
		}
		return TypeRef{Kind: KindChan, Elem: &elem}, true
	case *types.Named:
		obj := typ.Obj()
		name := obj.Name()
		if pkg := obj.Pkg(); pkg != nil {
			name = pkg.Path() + "." + name
		}
		return TypeRef{Kind: KindNamed, Name: name}, true
	case *types.Alias:
		return o.typeRefOf(types.Unalias(typ))
	default:
		return TypeRef{}, false
	}
}

// splitQualified separates "import/path.Name" at the last dot after the
// last slash.
func splitQualified(s string) (pkgPath, name string, ok bool) {
	slash := strings.LastIndex(s, "/")
	dot := strings.LastIndex(s, ".")
	if dot < 0 || dot < slash {
		return "", "", false
	}
	return s[:dot], s[dot+1:], true
}
