// Package permission はカメラ利用許可の解決を担う
//
// 許可の状態はプロセスの生存期間中は一度だけ確定し、以後はキャッシュされる。
// 未決定（NotDetermined）の場合はプラットフォームのプロンプトが
// 解決するまで待機し、Authorized か Denied のどちらかで一度だけ再開する。
package permission
